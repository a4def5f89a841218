package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
)

// Client is the HTTP client for the payroll provider API. All data calls
// carry a bearer credential; rate limits and transient transport failures are
// retried with exponential backoff up to a bounded attempt count.
type Client struct {
	clientID     string
	clientSecret string
	baseURL      string
	tokenURL     string
	httpClient   *http.Client
	maxRetries   int
	retryBase    time.Duration
}

func NewClient(clientID, clientSecret, baseURL, tokenURL string) *Client {
	return &Client{
		clientID:     clientID,
		clientSecret: clientSecret,
		baseURL:      strings.TrimRight(baseURL, "/"),
		tokenURL:     tokenURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		maxRetries: DefaultMaxRetries,
		retryBase:  500 * time.Millisecond,
	}
}

// SetTimeout overrides the per-call timeout.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.httpClient.Timeout = timeout
}

// SetMaxRetries overrides the bounded retry attempt count.
func (c *Client) SetMaxRetries(n int) {
	c.maxRetries = n
}

// ExchangeCode exchanges an authorization code for token material. A rejected
// code (invalid or expired) surfaces as an auth error.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*TokenResult, error) {
	conf := c.oauthConfig()

	token, err := conf.Exchange(ctx, code)
	if err != nil {
		return nil, classifyOAuthError(err)
	}

	return tokenResultFrom(token), nil
}

// RefreshToken exchanges a refresh token for fresh access token material.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*TokenResult, error) {
	conf := c.oauthConfig()

	tokenSource := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	newToken, err := tokenSource.Token()
	if err != nil {
		return nil, classifyOAuthError(err)
	}

	result := tokenResultFrom(newToken)
	if result.RefreshToken == "" {
		result.RefreshToken = refreshToken // provider did not rotate it
	}

	log.Printf("Provider token refreshed, expires at: %s", result.ExpiresAt)
	return result, nil
}

func (c *Client) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  c.tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func tokenResultFrom(token *oauth2.Token) *TokenResult {
	result := &TokenResult{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	}
	if accountID, ok := token.Extra("company_id").(string); ok {
		result.ProviderAccountID = accountID
	}
	if scope, ok := token.Extra("scope").(string); ok && scope != "" {
		result.Scopes = strings.Fields(scope)
	}
	return result
}

func classifyOAuthError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		switch {
		case retrieveErr.Response != nil && retrieveErr.Response.StatusCode == http.StatusTooManyRequests:
			return &Error{Kind: KindRateLimited, StatusCode: retrieveErr.Response.StatusCode, Message: string(retrieveErr.Body), Err: err}
		case retrieveErr.Response != nil && retrieveErr.Response.StatusCode >= 500:
			return &Error{Kind: KindTransport, StatusCode: retrieveErr.Response.StatusCode, Message: string(retrieveErr.Body), Err: err}
		default:
			statusCode := 0
			if retrieveErr.Response != nil {
				statusCode = retrieveErr.Response.StatusCode
			}
			return &Error{Kind: KindAuth, StatusCode: statusCode, Message: string(retrieveErr.Body), Err: err}
		}
	}
	return &Error{Kind: KindTransport, Message: err.Error(), Err: err}
}

type directoryResponse struct {
	Individuals []struct {
		ID string `json:"id"`
	} `json:"individuals"`
	NextPageToken string `json:"next_page_token"`
}

// FetchDirectory fetches one page of individual identifiers.
func (c *Client) FetchDirectory(ctx context.Context, accessToken, pageToken string) (*DirectoryPage, error) {
	path := "/employer/directory"
	if pageToken != "" {
		path += "?page_token=" + url.QueryEscape(pageToken)
	}

	var resp directoryResponse
	if err := c.getJSON(ctx, accessToken, path, &resp); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(resp.Individuals))
	for _, individual := range resp.Individuals {
		ids = append(ids, individual.ID)
	}

	return &DirectoryPage{
		IndividualIDs: ids,
		NextPageToken: resp.NextPageToken,
	}, nil
}

type individualResponse struct {
	ID         string  `json:"id"`
	FirstName  string  `json:"first_name"`
	LastName   string  `json:"last_name"`
	Email      string  `json:"email"`
	Title      string  `json:"title"`
	Department string  `json:"department"`
	NationalID string  `json:"national_id"`
	StartDate  *string `json:"start_date"`
	EndDate    *string `json:"end_date"`
	IsActive   bool    `json:"is_active"`
}

// FetchIndividual fetches the full detail record for one individual.
func (c *Client) FetchIndividual(ctx context.Context, accessToken, individualID string) (*Individual, error) {
	path := "/employer/individuals/" + url.PathEscape(individualID)

	var raw map[string]interface{}
	var resp individualResponse
	if err := c.getJSONRaw(ctx, accessToken, path, &resp, &raw); err != nil {
		return nil, err
	}

	return &Individual{
		ID:         resp.ID,
		FirstName:  resp.FirstName,
		LastName:   resp.LastName,
		Email:      resp.Email,
		Title:      resp.Title,
		Department: resp.Department,
		NationalID: resp.NationalID,
		StartDate:  parseDate(resp.StartDate),
		EndDate:    parseDate(resp.EndDate),
		IsActive:   resp.IsActive,
		Raw:        raw,
	}, nil
}

type payStatementsResponse struct {
	PayStatements []struct {
		ID          string  `json:"id"`
		PayRunID    string  `json:"pay_run_id"`
		PayDate     *string `json:"pay_date"`
		PeriodStart *string `json:"period_start"`
		PeriodEnd   *string `json:"period_end"`
		GrossPay    float64 `json:"gross_pay"`
		NetPay      float64 `json:"net_pay"`
		TaxWithheld float64 `json:"tax_withheld"`
		Currency    string  `json:"currency"`
	} `json:"pay_statements"`
}

// FetchPayStatements fetches all pay statements for one individual.
func (c *Client) FetchPayStatements(ctx context.Context, accessToken, individualID string) ([]PayStatement, error) {
	path := "/employer/individuals/" + url.PathEscape(individualID) + "/pay-statements"

	// The full per-item payload is retained alongside the typed decode, so
	// unmapped provider fields survive into the stored source data.
	var resp payStatementsResponse
	var rawResp struct {
		PayStatements []map[string]interface{} `json:"pay_statements"`
	}
	if err := c.getJSONRaw(ctx, accessToken, path, &resp, &rawResp); err != nil {
		return nil, err
	}

	statements := make([]PayStatement, 0, len(resp.PayStatements))
	for i, s := range resp.PayStatements {
		var raw map[string]interface{}
		if i < len(rawResp.PayStatements) {
			raw = rawResp.PayStatements[i]
		}
		statements = append(statements, PayStatement{
			ID:           s.ID,
			IndividualID: individualID,
			PayRunID:     s.PayRunID,
			PayDate:      parseDate(s.PayDate),
			PeriodStart:  parseDate(s.PeriodStart),
			PeriodEnd:    parseDate(s.PeriodEnd),
			GrossPay:     s.GrossPay,
			NetPay:       s.NetPay,
			TaxWithheld:  s.TaxWithheld,
			Currency:     s.Currency,
			Raw:          raw,
		})
	}

	return statements, nil
}

// getJSON performs a GET with retries and decodes the response body into out.
func (c *Client) getJSON(ctx context.Context, accessToken, path string, out interface{}) error {
	return c.getJSONRaw(ctx, accessToken, path, out, nil)
}

// getJSONRaw additionally decodes the body into raw when raw is non-nil, so
// callers can retain the full source payload.
func (c *Client) getJSONRaw(ctx context.Context, accessToken, path string, out, raw interface{}) error {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.retryBase * time.Duration(1<<(attempt-1))
			log.Printf("Retrying provider call %s (attempt %d/%d) after %s", path, attempt, c.maxRetries, backoff)
			select {
			case <-ctx.Done():
				return &Error{Kind: KindTransport, Message: ctx.Err().Error(), Err: ctx.Err()}
			case <-time.After(backoff):
			}
		}

		body, err := c.doOnce(ctx, accessToken, path)
		if err == nil {
			if raw != nil {
				_ = json.Unmarshal(body, raw)
			}
			if err := json.Unmarshal(body, out); err != nil {
				return &Error{Kind: KindTransport, Message: fmt.Sprintf("failed to parse response: %v", err), Err: err}
			}
			return nil
		}

		lastErr = err
		if !IsRateLimited(err) && !IsTransportError(err) {
			return err // auth and not-found are never retried
		}
	}

	return lastErr
}

func (c *Client) doOnce(ctx context.Context, accessToken, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Message: err.Error(), Err: err}
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindTransport, StatusCode: resp.StatusCode, Message: err.Error(), Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &Error{Kind: KindAuth, StatusCode: resp.StatusCode, Message: string(body)}
	case resp.StatusCode == http.StatusNotFound:
		return nil, &Error{Kind: KindNotFound, StatusCode: resp.StatusCode, Message: string(body)}
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &Error{Kind: KindRateLimited, StatusCode: resp.StatusCode, Message: string(body)}
	default:
		return nil, &Error{Kind: KindTransport, StatusCode: resp.StatusCode, Message: string(body)}
	}
}

func parseDate(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}

	formats := []string{"2006-01-02", time.RFC3339}
	for _, format := range formats {
		if t, err := time.Parse(format, *s); err == nil {
			return &t
		}
	}

	log.Printf("Warning: failed to parse provider date %q", *s)
	return nil
}
