// Package translate talks to the external translation service: a synchronous
// text API and the asynchronous batch document API.
package translate

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/yqms/instructionflow/internal/apperr"
	"github.com/yqms/instructionflow/internal/models"
)

const apiVersion = "3.0"

// Client is the synchronous text translator.
type Client struct {
	http *resty.Client
}

// NewClient configures a REST client against the translator's text endpoint.
func NewClient(endpoint, apiKey, region string) *Client {
	http := resty.New().
		SetBaseURL(endpoint).
		SetHeader("Ocp-Apim-Subscription-Key", apiKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(30 * time.Second).
		SetRetryCount(2)
	if region != "" {
		http.SetHeader("Ocp-Apim-Subscription-Region", region)
	}
	return &Client{http: http}
}

type textItem struct {
	Text string `json:"Text"`
}

type translateResult struct {
	Translations []struct {
		Text string `json:"text"`
		To   string `json:"to"`
	} `json:"translations"`
}

type detectResult struct {
	Language string  `json:"language"`
	Score    float64 `json:"score"`
}

type languagesResult struct {
	Translation map[string]struct {
		Name       string `json:"name"`
		NativeName string `json:"nativeName"`
	} `json:"translation"`
}

// TranslateText translates one string. An empty from lets the service detect
// the source language itself.
func (c *Client) TranslateText(ctx context.Context, text, from, to string) (string, error) {
	var out []translateResult
	req := c.http.R().
		SetContext(ctx).
		SetQueryParam("api-version", apiVersion).
		SetQueryParam("to", to).
		SetBody([]textItem{{Text: text}}).
		SetResult(&out)
	if from != "" {
		req.SetQueryParam("from", from)
	}

	resp, err := req.Post("/translate")
	if err != nil {
		return "", fmt.Errorf("%w: translate call failed: %v", apperr.ErrUpstreamUnavailable, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("%w: translate returned %s: %s", apperr.ErrUpstreamRejected, resp.Status(), resp.String())
	}
	if len(out) == 0 || len(out[0].Translations) == 0 {
		return "", fmt.Errorf("%w: translate returned no result", apperr.ErrUpstreamRejected)
	}
	return out[0].Translations[0].Text, nil
}

// Detect returns the language code the service detects for text.
func (c *Client) Detect(ctx context.Context, text string) (string, error) {
	var out []detectResult
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("api-version", apiVersion).
		SetBody([]textItem{{Text: text}}).
		SetResult(&out).
		Post("/detect")
	if err != nil {
		return "", fmt.Errorf("%w: detect call failed: %v", apperr.ErrUpstreamUnavailable, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("%w: detect returned %s: %s", apperr.ErrUpstreamRejected, resp.Status(), resp.String())
	}
	if len(out) == 0 || out[0].Language == "" {
		return "", apperr.ErrLanguageNotDetected
	}
	return out[0].Language, nil
}

// SupportedLanguages lists the translation languages the service offers,
// sorted by code.
func (c *Client) SupportedLanguages(ctx context.Context) ([]models.Language, error) {
	var out languagesResult
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("api-version", apiVersion).
		SetQueryParam("scope", "translation").
		SetResult(&out).
		Get("/languages")
	if err != nil {
		return nil, fmt.Errorf("%w: languages call failed: %v", apperr.ErrUpstreamUnavailable, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: languages returned %s: %s", apperr.ErrUpstreamRejected, resp.Status(), resp.String())
	}

	languages := make([]models.Language, 0, len(out.Translation))
	for code, l := range out.Translation {
		languages = append(languages, models.Language{Code: code, Name: l.Name})
	}
	sort.Slice(languages, func(i, j int) bool { return languages[i].Code < languages[j].Code })
	return languages, nil
}
