package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/target/quill/internal/data/database"
	"github.com/target/quill/internal/data/pgxutil"
	"github.com/target/quill/internal/domain/article"
	apperrors "github.com/target/quill/internal/errors"
	"github.com/target/quill/internal/ports"
)

const articlesTable = "articles"

var articleColumns = []string{"id", "title", "content", "author", "author_id", "created_at", "updated_at"}

// ArticleRepo provides database operations for articles.
type ArticleRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

var _ ports.ArticleStore = (*ArticleRepo)(nil)

// NewArticleRepo creates a new ArticleRepo with real time provider.
func NewArticleRepo(db *sql.DB) *ArticleRepo {
	return &ArticleRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewArticleRepoWithTimeProvider creates a new ArticleRepo with a custom time provider (useful for tests).
func NewArticleRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *ArticleRepo {
	return &ArticleRepo{DB: db, timeProvider: tp}
}

// List returns every article ordered by key. The ORDER BY mirrors article.SortKey.Compare
// so a bulk load and the in-memory list agree on order.
func (r *ArticleRepo) List(ctx context.Context, key article.SortKey) ([]article.Article, error) {
	query, args := database.Select(articlesTable, articleColumns...).
		OrderBy(orderTerms(key)...).
		Build()

	var out []article.Article
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		out, err = pgx.CollectRows(rows, scanArticle)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", apperrors.MapDBError(err))
	}
	if out == nil {
		out = []article.Article{}
	}
	return out, nil
}

// Get returns a single article. Unknown or malformed IDs are not-found errors.
func (r *ArticleRepo) Get(ctx context.Context, id string) (*article.Article, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperrors.NotFoundf("article %q not found", id)
	}
	query, args := database.Select(articlesTable, articleColumns...).
		Where("id", database.Equal, id).
		Build()

	var out article.Article
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		out, err = pgx.CollectExactlyOneRow(rows, scanArticle)
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFoundf("article %q not found", id)
		}
		return nil, fmt.Errorf("get article: %w", apperrors.MapDBError(err))
	}
	return &out, nil
}

// Insert stores a new article. created_at and updated_at start equal.
func (r *ArticleRepo) Insert(ctx context.Context, in ports.NewArticle) (*article.Article, error) {
	now := r.timeProvider.Now().UTC()
	var out article.Article
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			INSERT INTO articles (id, title, content, author, author_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $6)
			RETURNING `+strings.Join(articleColumns, ", "),
			uuid.NewString(),
			strings.TrimSpace(in.Title),
			in.Content,
			in.Author,
			in.AuthorID,
			now,
		)
		if err != nil {
			return err
		}
		out, err = pgx.CollectExactlyOneRow(rows, scanArticle)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("insert article: %w", apperrors.MapDBError(err))
	}
	return &out, nil
}

// Update replaces title and content and bumps updated_at.
func (r *ArticleRepo) Update(ctx context.Context, id string, patch ports.ArticlePatch) (*article.Article, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperrors.NotFoundf("article %q not found", id)
	}
	now := r.timeProvider.Now().UTC()
	var out article.Article
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			UPDATE articles SET title = $2, content = $3, updated_at = $4
			WHERE id = $1
			RETURNING `+strings.Join(articleColumns, ", "),
			id,
			strings.TrimSpace(patch.Title),
			patch.Content,
			now,
		)
		if err != nil {
			return err
		}
		out, err = pgx.CollectExactlyOneRow(rows, scanArticle)
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFoundf("article %q not found", id)
		}
		return nil, fmt.Errorf("update article: %w", apperrors.MapDBError(err))
	}
	return &out, nil
}

// Delete removes an article.
func (r *ArticleRepo) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperrors.NotFoundf("article %q not found", id)
	}
	res, err := r.DB.ExecContext(ctx, `DELETE FROM articles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete article: %w", apperrors.MapDBError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete article rows affected: %w", err)
	}
	if n == 0 {
		return apperrors.NotFoundf("article %q not found", id)
	}
	return nil
}

// orderTerms renders the ORDER BY for key with id as the final tiebreak.
// Titles compare case-insensitively first and then byte-wise, as in memory.
func orderTerms(key article.SortKey) []database.OrderTerm {
	column, asc := key.Column()
	var terms []database.OrderTerm
	if column == "title" {
		terms = append(terms,
			database.OrderTerm{Column: column, Lower: true, Collate: "C", Desc: !asc},
			database.OrderTerm{Column: column, Collate: "C", Desc: !asc},
		)
	} else {
		terms = append(terms, database.OrderTerm{Column: column, Desc: !asc})
	}
	return append(terms, database.OrderTerm{Column: "id"})
}

func scanArticle(row pgx.CollectableRow) (article.Article, error) {
	var a article.Article
	err := row.Scan(&a.ID, &a.Title, &a.Content, &a.Author, &a.AuthorID, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}
