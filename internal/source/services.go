package source

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/mr1hm/go-citymap/internal/models"
)

// serviceRow is a local_services row. Older rows carry "category" instead
// of "type".
type serviceRow struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	Category string   `json:"category"`
	Lat      *float64 `json:"lat"`
	Lng      *float64 `json:"lng"`
}

func (r serviceRow) service() models.Service {
	cat := r.Type
	if cat == "" {
		cat = r.Category
	}
	return models.Service{ID: r.ID, Name: r.Name, Category: cat, Lat: r.Lat, Lng: r.Lng}
}

// RESTServices reads local_services through the hosted store's REST API.
type RESTServices struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewRESTServices(baseURL, apiKey string, timeout time.Duration) *RESTServices {
	return &RESTServices{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *RESTServices) FetchServices(ctx context.Context) ([]models.Service, error) {
	endpoint := s.baseURL + "/rest/v1/local_services?select=id,name,type,lat,lng"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("apikey", s.apiKey)
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	var rows []serviceRow
	if err := doJSON(s.client, req, &rows); err != nil {
		return nil, err
	}

	services := make([]models.Service, 0, len(rows))
	for _, r := range rows {
		services = append(services, r.service())
	}
	return services, nil
}

// PostgresServices reads local_services straight from the database.
type PostgresServices struct {
	db *sql.DB
}

func OpenPostgresServices(dsn string) (*PostgresServices, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening services database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	return &PostgresServices{db: db}, nil
}

func NewPostgresServices(db *sql.DB) *PostgresServices {
	return &PostgresServices{db: db}
}

func (s *PostgresServices) FetchServices(ctx context.Context) ([]models.Service, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id::text, COALESCE(name, ''), COALESCE(type, ''), lat, lng FROM local_services`)
	if err != nil {
		return nil, fmt.Errorf("error querying local_services: %w", err)
	}
	defer rows.Close()

	var services []models.Service
	for rows.Next() {
		var (
			r        serviceRow
			lat, lng sql.NullFloat64
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.Type, &lat, &lng); err != nil {
			return nil, fmt.Errorf("error scanning local_services row: %w", err)
		}
		if lat.Valid {
			r.Lat = &lat.Float64
		}
		if lng.Valid {
			r.Lng = &lng.Float64
		}
		services = append(services, r.service())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading local_services: %w", err)
	}
	return services, nil
}

func (s *PostgresServices) Close() error {
	return s.db.Close()
}
