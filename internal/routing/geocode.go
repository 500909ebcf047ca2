package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/example/charity-drive/internal/models"
)

// Place is a geocoding result: a coordinate with its display address.
type Place struct {
	Coord   models.Coord `json:"coord"`
	Address string       `json:"address"`
}

// Geocoder resolves coordinates to addresses and free-text queries to
// candidate places.
type Geocoder interface {
	Reverse(ctx context.Context, c models.Coord, lang string) (string, error)
	Search(ctx context.Context, query, lang string, limit int) ([]Place, error)
}

// NominatimClient talks to a Nominatim-compatible geocoding server.
type NominatimClient struct {
	Endpoint  string
	UserAgent string
	Client    *http.Client
}

func NewNominatimClient(endpoint string, timeout time.Duration) *NominatimClient {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &NominatimClient{
		Endpoint:  endpoint,
		UserAgent: "charity-drive/1.0",
		Client:    &http.Client{Timeout: timeout},
	}
}

func (n *NominatimClient) Reverse(ctx context.Context, c models.Coord, lang string) (string, error) {
	q := url.Values{}
	q.Set("format", "json")
	q.Set("lat", strconv.FormatFloat(c.Lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(c.Lng, 'f', 6, 64))
	var out struct {
		DisplayName string `json:"display_name"`
	}
	if err := n.get(ctx, "/reverse", q, lang, &out); err != nil {
		return "", err
	}
	if out.DisplayName == "" {
		// a successful lookup with no address still needs something to show
		return fmt.Sprintf("Lat: %.3f, Lng: %.3f", c.Lat, c.Lng), nil
	}
	return out.DisplayName, nil
}

func (n *NominatimClient) Search(ctx context.Context, query, lang string, limit int) ([]Place, error) {
	if limit <= 0 {
		limit = 5
	}
	q := url.Values{}
	q.Set("format", "json")
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(limit))
	var out []struct {
		Lat         string `json:"lat"`
		Lon         string `json:"lon"`
		DisplayName string `json:"display_name"`
	}
	if err := n.get(ctx, "/search", q, lang, &out); err != nil {
		return nil, err
	}
	places := make([]Place, 0, len(out))
	for _, item := range out {
		lat, err := strconv.ParseFloat(item.Lat, 64)
		if err != nil {
			continue
		}
		lng, err := strconv.ParseFloat(item.Lon, 64)
		if err != nil {
			continue
		}
		places = append(places, Place{Coord: models.Coord{Lat: lat, Lng: lng}, Address: item.DisplayName})
	}
	return places, nil
}

func (n *NominatimClient) get(ctx context.Context, path string, q url.Values, lang string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.Endpoint+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", n.UserAgent)
	if lang != "" {
		req.Header.Set("Accept-Language", lang)
	}
	resp, err := n.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("geocoding service returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
