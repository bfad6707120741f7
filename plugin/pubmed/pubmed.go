// Package pubmed queries the NCBI eutils API for study counts linking
// ingredients to menstrual and vaginal health research.
package pubmed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

var timeout = 10 * time.Second

// Client queries PubMed via the esearch endpoint. Requests are rate
// limited to stay within NCBI's 3 requests per second guideline for
// unauthenticated clients.
type Client struct {
	baseURL string
	email   string
	client  *http.Client
	limiter *rate.Limiter
}

func NewClient(email string) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		email:   email,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(3), 1),
	}
}

type esearchResponse struct {
	ESearchResult struct {
		Count string `json:"count"`
	} `json:"esearchresult"`
}

// CountStudies returns the number of PubMed articles relating the
// ingredient to menstrual or vaginal health topics.
func (c *Client) CountStudies(ctx context.Context, ingredientName string) (int32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	query := fmt.Sprintf("(%s OR %q) AND (menstrual OR vaginal OR period OR dysmenorrhea OR endometriosis)", ingredientName, ingredientName)

	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("term", query)
	params.Set("retmax", "0")
	params.Set("retmode", "json")
	params.Set("email", c.email)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/esearch.fcgi?"+params.Encode(), nil)
	if err != nil {
		return 0, errors.Wrap(err, "failed to construct esearch request")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to query PubMed for %s", ingredientName)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, errors.Wrap(err, "failed to read esearch response")
	}
	if resp.StatusCode != http.StatusOK {
		return 0, errors.Errorf("esearch returned status %d: %s", resp.StatusCode, body)
	}

	response := &esearchResponse{}
	if err := json.Unmarshal(body, response); err != nil {
		return 0, errors.Wrap(err, "failed to unmarshal esearch response")
	}

	count, err := strconv.ParseInt(response.ESearchResult.Count, 10, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "unexpected esearch count %q", response.ESearchResult.Count)
	}
	return int32(count), nil
}
