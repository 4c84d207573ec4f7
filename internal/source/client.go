package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mr1hm/go-citymap/internal/models"
)

// fallbackAQI is reported for a city whose reading could not be fetched.
func fallbackAQI(city string) models.AQIReading {
	return models.AQIReading{City: city, AQI: 100, Category: "Moderate"}
}

// APIClient reads incidents, sensors and AQI from the city API.
type APIClient struct {
	baseURL string
	client  *http.Client
	signer  *TokenSigner
}

func NewAPIClient(baseURL string, timeout time.Duration, signer *TokenSigner) *APIClient {
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		signer:  signer,
	}
}

type incidentPage struct {
	Content []models.Incident `json:"content"`
}

func (c *APIClient) FetchIncidents(ctx context.Context) ([]models.Incident, error) {
	var page incidentPage
	if err := c.get(ctx, "/v1/incidents?page=0&size=500", &page); err != nil {
		return nil, err
	}
	return page.Content, nil
}

func (c *APIClient) FetchSensors(ctx context.Context) ([]models.Sensor, error) {
	var sensors []models.Sensor
	if err := c.get(ctx, "/v1/sensors", &sensors); err != nil {
		return nil, err
	}
	return sensors, nil
}

// FetchAQI reads every city in turn. A failed city gets the fallback reading,
// so the call only errors when ctx is done.
func (c *APIClient) FetchAQI(ctx context.Context, cities []string) ([]models.AQIReading, error) {
	readings := make([]models.AQIReading, 0, len(cities))
	for _, city := range cities {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var r models.AQIReading
		err := c.get(ctx, "/v1/aqi/city?name="+url.QueryEscape(city), &r)
		if err != nil {
			slog.Warn("aqi fetch failed, using fallback", "city", city, "error", err)
			r = fallbackAQI(city)
		}
		if r.City == "" {
			r.City = city
		}
		readings = append(readings, r)
	}
	return readings, nil
}

func (c *APIClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.signer != nil {
		token, err := c.signer.Token()
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return doJSON(c.client, req, out)
}

func doJSON(client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("error while doing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d - status: %s", resp.StatusCode, resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("error decoding resp.Body: %w", err)
	}
	return nil
}
