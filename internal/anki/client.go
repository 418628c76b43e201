// Package anki talks to a locally running AnkiConnect endpoint. It is the
// only place in the program that knows the request envelope of that API.
package anki

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultURL is where AnkiConnect listens out of the box.
	DefaultURL = "http://127.0.0.1:8765"

	apiVersion     = 6
	requestTimeout = 10 * time.Second
)

// Card is a fully assembled note ready for submission.
type Card struct {
	Deck           string
	Model          string
	Fields         map[string]string
	Tags           []string
	AllowDuplicate bool
}

// Client issues synchronous requests against AnkiConnect. Calls are not
// retried: if the service is offline or rejects a note, the caller needs to
// know, not a masked success.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the given AnkiConnect URL.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// request is the AnkiConnect envelope shared by every action.
type request struct {
	Action  string `json:"action"`
	Version int    `json:"version"`
	Params  any    `json:"params"`
}

// response is the AnkiConnect result envelope. Error is a string or null.
type response struct {
	Result json.RawMessage `json:"result"`
	Error  *string         `json:"error"`
}

// invoke performs a single action and returns the raw result payload.
func (c *Client) invoke(action string, params any) (json.RawMessage, error) {
	if params == nil {
		params = map[string]any{}
	}
	body, err := json.Marshal(request{
		Action:  action,
		Version: apiVersion,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", action, err)
	}

	resp, err := c.httpClient.Post(c.baseURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("anki request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read anki response: %w", err)
	}

	var res response
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("unexpected anki response %q: %w", snippet(data), err)
	}
	if res.Error != nil {
		return nil, fmt.Errorf("anki %s error: %s", action, *res.Error)
	}

	return res.Result, nil
}

// Exists reports whether a note with the given word already exists. This is
// the dedup gate, run before any enrichment work is spent on a word.
func (c *Client) Exists(word string) (bool, error) {
	params := map[string]any{
		"query": fmt.Sprintf("Word:%q", word),
	}
	result, err := c.invoke("findNotes", params)
	if err != nil {
		return false, err
	}

	var ids []int64
	if err := json.Unmarshal(result, &ids); err != nil {
		return false, fmt.Errorf("unexpected findNotes result %q: %w", snippet(result), err)
	}
	return len(ids) > 0, nil
}

// AddCard submits a note to the configured deck.
func (c *Client) AddCard(card Card) error {
	tags := card.Tags
	if tags == nil {
		tags = []string{}
	}
	note := map[string]any{
		"deckName":  card.Deck,
		"modelName": card.Model,
		"fields":    card.Fields,
		"tags":      tags,
		"options": map[string]any{
			"allowDuplicate": card.AllowDuplicate,
		},
	}
	_, err := c.invoke("addNote", map[string]any{"note": note})
	return err
}

// StoreMedia uploads raw bytes into Anki's media collection under the given
// filename, so a card field can reference it with an <img> tag.
func (c *Client) StoreMedia(filename string, data []byte) error {
	params := map[string]any{
		"filename": filename,
		"data":     base64.StdEncoding.EncodeToString(data),
	}
	_, err := c.invoke("storeMediaFile", params)
	return err
}

// DeckNames returns the names of all decks in the collection.
func (c *Client) DeckNames() ([]string, error) {
	return c.stringList("deckNames")
}

// ModelNames returns the names of all note models in the collection.
func (c *Client) ModelNames() ([]string, error) {
	return c.stringList("modelNames")
}

func (c *Client) stringList(action string) ([]string, error) {
	result, err := c.invoke(action, nil)
	if err != nil {
		return nil, err
	}
	var names []string
	if err := json.Unmarshal(result, &names); err != nil {
		return nil, fmt.Errorf("unexpected %s result %q: %w", action, snippet(result), err)
	}
	return names, nil
}

// Version asks AnkiConnect for its API version. Used at startup as a
// connectivity probe.
func (c *Client) Version() (int, error) {
	result, err := c.invoke("version", nil)
	if err != nil {
		return 0, err
	}
	var version int
	if err := json.Unmarshal(result, &version); err != nil {
		return 0, fmt.Errorf("unexpected version result %q: %w", snippet(result), err)
	}
	return version, nil
}

// snippet truncates a payload for error messages.
func snippet(data []byte) string {
	const max = 200
	if len(data) > max {
		return string(data[:max]) + "..."
	}
	return string(data)
}
