package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
)

// foodIDParam parses the :id path param.
func foodIDParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id < 1 {
		apiError(c, http.StatusBadRequest, "invalid food id")
		return 0, false
	}
	return id, true
}

// visibleFood loads a food the user may read: their own or a shared one.
func visibleFood(ctx context.Context, q querier, id, userID int) (food, error) {
	return queryOne[food](ctx, q,
		`SELECT * FROM foods WHERE id = @id AND (user_id = @userID OR user_id IS NULL)`,
		pgx.NamedArgs{"id": id, "userID": userID})
}

// editableFood loads a food for modification, locking the row. Shared foods
// yield errForbidden, missing or foreign foods errNotFound, and a version that
// fails the If-Match precondition a *versionMismatchError.
func editableFood(ctx context.Context, tx pgx.Tx, id, userID int, cond ifMatch, checkVersion bool) (food, error) {
	f, err := queryOne[food](ctx, tx,
		`SELECT * FROM foods WHERE id = @id AND (user_id = @userID OR user_id IS NULL) FOR UPDATE`,
		pgx.NamedArgs{"id": id, "userID": userID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return food{}, errNotFound
		}
		return food{}, err
	}
	if err := checkEditable(f, cond, checkVersion); err != nil {
		return food{}, err
	}
	return f, nil
}

// checkEditable applies the ownership and If-Match rules to a loaded food.
// checkVersion is false for a DELETE sent without If-Match.
func checkEditable(f food, cond ifMatch, checkVersion bool) error {
	if f.UserID == nil {
		return errForbidden
	}
	if checkVersion && !cond.matches(f.RowVersion) {
		return &versionMismatchError{Current: f.RowVersion}
	}
	return nil
}

// searchFoods lists the user's own and shared foods with search, sorting and
// pagination.
// GET /api/foods?q=&page=&page_size=&sort=&order=&include_archived=.
func (h *Handler) searchFoods(c *gin.Context) {
	userID := c.GetInt("user_id")

	params, err := parseFoodSearch(c.Query)
	if err != nil {
		h.respondError(c, err, "", "invalid search")
		return
	}

	where := `WHERE (user_id = @userID OR user_id IS NULL)
		  AND (@includeArchived OR NOT archived)
		  AND (@q = '' OR name ILIKE @pattern OR brand ILIKE @pattern)`
	args := pgx.NamedArgs{
		"userID":          userID,
		"includeArchived": params.IncludeArchived,
		"q":               params.Query,
		"pattern":         likePattern(params.Query),
		"limit":           params.PageSize,
		"offset":          params.offset(),
	}

	total, err := queryScalar[int](c, h.db, "SELECT COUNT(*)::int FROM foods "+where, args)
	if err != nil {
		h.respondError(c, err, "", "failed to search foods")
		return
	}

	items, err := queryMany[food](c, h.db,
		"SELECT * FROM foods "+where+" "+params.orderClause()+" LIMIT @limit OFFSET @offset", args)
	if err != nil {
		h.respondError(c, err, "", "failed to search foods")
		return
	}

	c.JSON(http.StatusOK, newPagedResult(items, params.Page, params.PageSize, total))
}

// getFood returns one food with its row version in the ETag header.
// GET /api/foods/:id.
func (h *Handler) getFood(c *gin.Context) {
	id, ok := foodIDParam(c)
	if !ok {
		return
	}

	f, err := visibleFood(c, h.db, id, c.GetInt("user_id"))
	if err != nil {
		h.respondError(c, err, "food not found", "failed to fetch food")
		return
	}

	c.Header("ETag", encodeRowVersion(f.RowVersion))
	c.JSON(http.StatusOK, f)
}

// createFood adds a food owned by the authenticated user.
// POST /api/foods.
func (h *Handler) createFood(c *gin.Context) {
	userID := c.GetInt("user_id")

	var body foodRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := body.validate(); err != nil {
		h.respondError(c, err, "", "invalid food")
		return
	}

	var created food
	err := h.withTx(c, func(tx pgx.Tx) error {
		var err error
		created, err = queryOne[food](c, tx,
			`INSERT INTO foods (user_id, name, brand, serving_size, serving_unit, calories, protein_g, carbs_g, fat_g, fiber_g)
			 VALUES (@userID, @name, @brand, @servingSize, @servingUnit, @calories, @proteinG, @carbsG, @fatG, @fiberG)
			 RETURNING *`,
			foodArgs(body, pgx.NamedArgs{"userID": userID}))
		if err != nil {
			return err
		}
		return writeAudit(c, tx, userID, "food", created.ID, "create", map[string]any{
			"name": created.Name, "calories": created.Calories, "row_version": created.RowVersion,
		})
	})
	if err != nil {
		h.respondError(c, err, "", "failed to create food")
		return
	}

	c.Header("ETag", encodeRowVersion(created.RowVersion))
	c.JSON(http.StatusCreated, created)
}

// updateFood replaces a food's fields under optimistic concurrency.
// PUT /api/foods/:id. The If-Match header must carry the ETag from a previous
// read; a stale tag gets 412 with the current ETag and nothing is written.
func (h *Handler) updateFood(c *gin.Context) {
	userID := c.GetInt("user_id")
	id, ok := foodIDParam(c)
	if !ok {
		return
	}

	cond, present, err := parseIfMatch(c.GetHeader("If-Match"))
	if !present {
		apiError(c, http.StatusPreconditionRequired, "If-Match header is required")
		return
	}
	if err != nil {
		h.respondError(c, err, "", "invalid If-Match")
		return
	}

	var body foodRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := body.validate(); err != nil {
		h.respondError(c, err, "", "invalid food")
		return
	}

	var updated food
	err = h.withTx(c, func(tx pgx.Tx) error {
		current, err := editableFood(c, tx, id, userID, cond, true)
		if err != nil {
			return err
		}
		updated, err = queryOne[food](c, tx,
			`UPDATE foods SET
				name = @name, brand = @brand,
				serving_size = @servingSize, serving_unit = @servingUnit,
				calories = @calories, protein_g = @proteinG, carbs_g = @carbsG,
				fat_g = @fatG, fiber_g = @fiberG,
				row_version = row_version + 1,
				updated_at = now()
			 WHERE id = @id AND row_version = @version
			 RETURNING *`,
			foodArgs(body, pgx.NamedArgs{"id": id, "version": current.RowVersion}))
		if err != nil {
			return err
		}
		return writeAudit(c, tx, userID, "food", id, "update", map[string]any{
			"from_version": current.RowVersion, "to_version": updated.RowVersion,
			"calories_before": current.Calories, "calories_after": updated.Calories,
		})
	})
	if err != nil {
		h.respondError(c, err, "food not found", "failed to update food")
		return
	}

	c.Header("ETag", encodeRowVersion(updated.RowVersion))
	c.JSON(http.StatusOK, updated)
}

// deleteFood removes a food, or archives it when intake entries reference it.
// DELETE /api/foods/:id. If-Match is optional here but honoured when sent.
// Returns 204 when removed, 200 with the archived food otherwise.
func (h *Handler) deleteFood(c *gin.Context) {
	userID := c.GetInt("user_id")
	id, ok := foodIDParam(c)
	if !ok {
		return
	}

	cond, present, err := parseIfMatch(c.GetHeader("If-Match"))
	if err != nil {
		h.respondError(c, err, "", "invalid If-Match")
		return
	}

	var archived *food
	err = h.withTx(c, func(tx pgx.Tx) error {
		current, err := editableFood(c, tx, id, userID, cond, present)
		if err != nil {
			return err
		}
		archived, err = removeOrArchiveFood(c, tx, userID, current)
		return err
	})
	if err != nil {
		h.respondError(c, err, "food not found", "failed to delete food")
		return
	}

	if archived != nil {
		c.Header("ETag", encodeRowVersion(archived.RowVersion))
		c.JSON(http.StatusOK, archived)
		return
	}
	c.Status(http.StatusNoContent)
}

// removeOrArchiveFood deletes an unreferenced food. A food that intake
// entries still point at is archived instead and returned.
func removeOrArchiveFood(ctx context.Context, q querier, userID int, current food) (*food, error) {
	args := pgx.NamedArgs{"id": current.ID}
	refs, err := queryScalar[int](ctx, q,
		"SELECT COUNT(*)::int FROM intake_entries WHERE food_id = @id", args)
	if err != nil {
		return nil, err
	}

	if refs > 0 {
		f, err := queryOne[food](ctx, q,
			`UPDATE foods SET archived = true, row_version = row_version + 1, updated_at = now()
			 WHERE id = @id RETURNING *`, args)
		if err != nil {
			return nil, err
		}
		return &f, writeAudit(ctx, q, userID, "food", current.ID, "archive", map[string]any{
			"references": refs, "row_version": f.RowVersion,
		})
	}

	if _, err := q.Exec(ctx, "DELETE FROM foods WHERE id = @id", args); err != nil {
		return nil, err
	}
	return nil, writeAudit(ctx, q, userID, "food", current.ID, "delete", map[string]any{
		"name": current.Name, "row_version": current.RowVersion,
	})
}

// foodArgs merges the request fields into args.
func foodArgs(body foodRequest, args pgx.NamedArgs) pgx.NamedArgs {
	args["name"] = body.Name
	args["brand"] = body.Brand
	args["servingSize"] = body.ServingSize
	args["servingUnit"] = body.ServingUnit
	args["calories"] = body.Calories
	args["proteinG"] = body.ProteinG
	args["carbsG"] = body.CarbsG
	args["fatG"] = body.FatG
	args["fiberG"] = body.FiberG
	return args
}
