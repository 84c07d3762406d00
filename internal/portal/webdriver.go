package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// KeyEnter is the WebDriver key code for the Enter key, for use with
// Element.Type.
const KeyEnter = ""

const elementKey = "element-6066-11e4-a52e-4f735466cecf"

const pollInterval = 500 * time.Millisecond

// WebDriver is a minimal W3C WebDriver wire client. It speaks to a local
// driver binary (chromedriver, geckodriver) over HTTP and implements the
// Driver interface.
type WebDriver struct {
	base      string
	sessionID string
	client    *http.Client
}

// NewSession starts a browser session against the driver at baseURL,
// e.g. "http://localhost:9515".
func NewSession(ctx context.Context, baseURL string) (*WebDriver, error) {
	d := &WebDriver{
		base:   strings.TrimRight(baseURL, "/"),
		client: &http.Client{Timeout: 60 * time.Second},
	}
	body := map[string]any{
		"capabilities": map[string]any{
			"alwaysMatch": map[string]any{
				"browserName": "chrome",
			},
		},
	}
	var resp struct {
		SessionID string `json:"sessionId"`
	}
	if err := d.do(ctx, http.MethodPost, "/session", body, &resp); err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	if resp.SessionID == "" {
		return nil, fmt.Errorf("start session: driver returned no session id")
	}
	d.sessionID = resp.SessionID
	return d, nil
}

// Close ends the browser session.
func (d *WebDriver) Close(ctx context.Context) error {
	return d.do(ctx, http.MethodDelete, "/session/"+d.sessionID, nil, nil)
}

func (d *WebDriver) Navigate(ctx context.Context, url string) error {
	return d.do(ctx, http.MethodPost, d.sessionPath("/url"), map[string]string{"url": url}, nil)
}

func (d *WebDriver) Find(ctx context.Context, loc Locator) (Element, error) {
	var resp map[string]string
	err := d.do(ctx, http.MethodPost, d.sessionPath("/element"), wireLocator(loc), &resp)
	if err != nil {
		return nil, err
	}
	return d.element(resp)
}

func (d *WebDriver) FindAll(ctx context.Context, loc Locator) ([]Element, error) {
	var resp []map[string]string
	err := d.do(ctx, http.MethodPost, d.sessionPath("/elements"), wireLocator(loc), &resp)
	if err != nil {
		return nil, err
	}
	return d.elements(resp)
}

func (d *WebDriver) WaitFor(ctx context.Context, loc Locator, timeout time.Duration) (Element, error) {
	deadline := time.Now().Add(timeout)
	for {
		el, err := d.Find(ctx, loc)
		if err == nil {
			return el, nil
		}
		if err != ErrNotFound {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, ErrNotFound
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func (d *WebDriver) AcceptPrompt(ctx context.Context) (string, error) {
	var text string
	if err := d.do(ctx, http.MethodGet, d.sessionPath("/alert/text"), nil, &text); err != nil {
		return "", err
	}
	if err := d.do(ctx, http.MethodPost, d.sessionPath("/alert/accept"), map[string]any{}, nil); err != nil {
		return "", err
	}
	return text, nil
}

func (d *WebDriver) sessionPath(suffix string) string {
	return "/session/" + d.sessionID + suffix
}

func (d *WebDriver) element(ref map[string]string) (Element, error) {
	id, ok := ref[elementKey]
	if !ok || id == "" {
		return nil, fmt.Errorf("malformed element reference: %v", ref)
	}
	return &wireElement{driver: d, id: id}, nil
}

func (d *WebDriver) elements(refs []map[string]string) ([]Element, error) {
	out := make([]Element, 0, len(refs))
	for _, ref := range refs {
		el, err := d.element(ref)
		if err != nil {
			return nil, err
		}
		out = append(out, el)
	}
	return out, nil
}

// wireLocator translates a profile locator into the W3C find-element
// payload. Strategies the protocol dropped (name) are rewritten as css.
func wireLocator(loc Locator) map[string]string {
	using, value := loc.By, loc.Value
	switch loc.By {
	case "xpath":
		using = "xpath"
	case "css":
		using = "css selector"
	case "tag":
		using = "tag name"
	case "name":
		using = "css selector"
		value = fmt.Sprintf("[name=%q]", loc.Value)
	default:
		using = "css selector"
	}
	return map[string]string{"using": using, "value": value}
}

// do performs one wire call. Protocol-level errors are decoded from the
// response body and mapped onto the package sentinel errors where the
// engine cares about the distinction.
func (d *WebDriver) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, d.base+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("webdriver %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("webdriver %s %s: read response: %w", method, path, err)
	}

	if resp.StatusCode >= 400 {
		var werr struct {
			Value struct {
				Error   string `json:"error"`
				Message string `json:"message"`
			} `json:"value"`
		}
		_ = json.Unmarshal(payload, &werr)
		switch werr.Value.Error {
		case "no such element", "stale element reference":
			return ErrNotFound
		case "no such alert":
			return ErrNoPrompt
		}
		if werr.Value.Error != "" {
			return fmt.Errorf("webdriver %s %s: %s: %s", method, path, werr.Value.Error, werr.Value.Message)
		}
		return fmt.Errorf("webdriver %s %s: status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	var env struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		return fmt.Errorf("webdriver %s %s: decode response: %w", method, path, err)
	}
	if err := json.Unmarshal(env.Value, out); err != nil {
		return fmt.Errorf("webdriver %s %s: decode value: %w", method, path, err)
	}
	return nil
}

type wireElement struct {
	driver *WebDriver
	id     string
}

func (e *wireElement) path(suffix string) string {
	return e.driver.sessionPath("/element/" + e.id + suffix)
}

func (e *wireElement) Click(ctx context.Context) error {
	return e.driver.do(ctx, http.MethodPost, e.path("/click"), map[string]any{}, nil)
}

func (e *wireElement) Type(ctx context.Context, text string) error {
	return e.driver.do(ctx, http.MethodPost, e.path("/value"), map[string]string{"text": text}, nil)
}

func (e *wireElement) Clear(ctx context.Context) error {
	return e.driver.do(ctx, http.MethodPost, e.path("/clear"), map[string]any{}, nil)
}

func (e *wireElement) Text(ctx context.Context) (string, error) {
	var text string
	err := e.driver.do(ctx, http.MethodGet, e.path("/text"), nil, &text)
	return text, err
}

func (e *wireElement) Selected(ctx context.Context) (bool, error) {
	var selected bool
	err := e.driver.do(ctx, http.MethodGet, e.path("/selected"), nil, &selected)
	return selected, err
}

func (e *wireElement) FindAll(ctx context.Context, loc Locator) ([]Element, error) {
	var resp []map[string]string
	err := e.driver.do(ctx, http.MethodPost, e.path("/elements"), wireLocator(loc), &resp)
	if err != nil {
		return nil, err
	}
	return e.driver.elements(resp)
}
