package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/spec-kit/helpdesk/internal/domain"
)

func getUser(ctx context.Context, q querier, id string) (*domain.User, error) {
	const query = `SELECT id, role, name, email FROM users WHERE id=$1`

	var user domain.User
	if err := q.QueryRow(ctx, query, id).Scan(
		&user.ID,
		&user.Role,
		&user.Name,
		&user.Email,
	); err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func getUsers(ctx context.Context, q querier, ids []string) (map[string]domain.User, error) {
	result := make(map[string]domain.User, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	rows, err := q.Query(ctx, `SELECT id, role, name, email FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get users")
	}
	defer rows.Close()

	for rows.Next() {
		var user domain.User
		if err := rows.Scan(&user.ID, &user.Role, &user.Name, &user.Email); err != nil {
			return nil, err
		}
		result[user.ID] = user
	}
	return result, rows.Err()
}

func queryUsers(ctx context.Context, q querier, uq UserQuery) ([]domain.User, error) {
	clauses := []string{"TRUE"}
	args := []any{}
	if uq.Role != nil {
		args = append(args, *uq.Role)
		clauses = append(clauses, fmt.Sprintf("role=$%d", len(args)))
	}
	if term := strings.TrimSpace(uq.NameOrEmailContains); term != "" {
		args = append(args, likePattern(term))
		p := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf(`(name ILIKE %s ESCAPE '\' OR email ILIKE %s ESCAPE '\')`, p, p))
	}
	query := fmt.Sprintf(`SELECT id, role, name, email FROM users WHERE %s ORDER BY name, id`, strings.Join(clauses, " AND "))
	if uq.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, uq.Limit)
	}

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query users")
	}
	defer rows.Close()

	var result []domain.User
	for rows.Next() {
		var user domain.User
		if err := rows.Scan(&user.ID, &user.Role, &user.Name, &user.Email); err != nil {
			return nil, err
		}
		result = append(result, user)
	}
	return result, rows.Err()
}
