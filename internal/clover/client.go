// Package clover talks to the Clover POS: inventory reads and ecommerce
// charges/refunds. Amounts cross this boundary in integer cents.
package clover

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const pageSize = 1000

type Client struct {
	BaseURL    string
	EcommURL   string
	MerchantID string
	APIToken   string
	EcommToken string
	HTTPClient *http.Client
}

func NewClient(baseURL, ecommURL, merchantID, apiToken, ecommToken string) *Client {
	return &Client{
		BaseURL:    baseURL,
		EcommURL:   ecommURL,
		MerchantID: merchantID,
		APIToken:   apiToken,
		EcommToken: ecommToken,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type Item struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       int64  `json:"price"` // cents
	Hidden      bool   `json:"hidden"`
	Available   bool   `json:"available"`
	ItemStock   struct {
		Quantity float64 `json:"quantity"`
	} `json:"itemStock"`
	Categories struct {
		Elements []struct {
			Name string `json:"name"`
		} `json:"elements"`
	} `json:"categories"`
}

// Category returns the first category name, the one the site displays.
func (i Item) Category() string {
	if len(i.Categories.Elements) > 0 {
		return i.Categories.Elements[0].Name
	}
	return ""
}

type itemPage struct {
	Elements []Item `json:"elements"`
}

// ListItems fetches one page of inventory items.
func (c *Client) ListItems(ctx context.Context, offset, limit int) ([]Item, error) {
	u := fmt.Sprintf("%s/v3/merchants/%s/items?expand=itemStock,categories&limit=%d&offset=%d",
		c.BaseURL, url.PathEscape(c.MerchantID), limit, offset)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIToken)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("clover: inventory request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("clover: 401 unauthorized fetching inventory: the API token is "+
			"invalid, expired, or missing the Inventory read permission for merchant %s. "+
			"Re-generate the token in the Clover dashboard. Response: %s", c.MerchantID, body)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("clover: inventory fetch returned %d: %s", resp.StatusCode, body)
	}

	var page itemPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("clover: decoding inventory page: %w", err)
	}
	return page.Elements, nil
}

// FetchAllItems pages through the full remote catalog, stopping when a page
// comes back shorter than the page size.
func (c *Client) FetchAllItems(ctx context.Context) ([]Item, error) {
	var all []Item
	for offset := 0; ; offset += pageSize {
		page, err := c.ListItems(ctx, offset, pageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
	}
}

type ChargeResult struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Source struct {
		Last4 string `json:"last4"`
		Brand string `json:"brand"`
	} `json:"source"`
}

// Succeeded reports whether the charge actually went through. Anything else
// is treated as a failed payment, including timeouts upstream.
func (r *ChargeResult) Succeeded() bool {
	return r.Status == "succeeded" || r.Status == "paid"
}

// Charge creates an ecommerce charge. amountCents must already be in minor
// currency units.
func (c *Client) Charge(ctx context.Context, sourceToken string, amountCents int64, currency, description, externalRef string) (*ChargeResult, error) {
	payload := map[string]any{
		"source":                sourceToken,
		"amount":                amountCents,
		"currency":              currency,
		"description":           description,
		"external_reference_id": externalRef,
	}

	var res ChargeResult
	if err := c.ecommPost(ctx, "/v1/charges", payload, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

type RefundResult struct {
	ID string `json:"id"`
}

// Refund refunds a prior charge, fully when amountCents is 0.
func (c *Client) Refund(ctx context.Context, chargeID string, amountCents int64) (*RefundResult, error) {
	payload := map[string]any{"charge": chargeID}
	if amountCents > 0 {
		payload["amount"] = amountCents
	}

	var res RefundResult
	if err := c.ecommPost(ctx, "/v1/refunds", payload, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) ecommPost(ctx context.Context, path string, payload any, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.EcommURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.EcommToken)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("clover: %s request failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("clover: %s returned %d: %s", path, resp.StatusCode, body)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
