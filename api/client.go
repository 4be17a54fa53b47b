// client.go - HTTP-Client fuer den Prognose-Service
// Enthaelt:
// - Client mit Basis-URL und http.Client
// - ClientFromEnvironment (liest MERLION_HOST)
// - do() als gemeinsamer Request-Pfad mit Fehlerauswertung
// - typisierte Methoden fuer alle Endpunkte
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"runtime"

	"github.com/nehal119/merlion-testing/envconfig"
	"github.com/nehal119/merlion-testing/version"
)

// Client ist der Zugang zum HTTP-API des Service.
type Client struct {
	base *url.URL
	http *http.Client
}

func checkError(resp *http.Response, body []byte) error {
	if resp.StatusCode < http.StatusBadRequest {
		return nil
	}

	apiError := StatusError{StatusCode: resp.StatusCode}

	err := json.Unmarshal(body, &apiError)
	if err != nil {
		// Rohen Body als Meldung verwenden, wenn kein JSON kam.
		apiError.ErrorMessage = string(body)
	}

	return apiError
}

// ClientFromEnvironment baut einen Client aus der Umgebung.
// MERLION_HOST bestimmt Schema, Host und Port des Servers.
func ClientFromEnvironment() (*Client, error) {
	return &Client{
		base: envconfig.Host(),
		http: http.DefaultClient,
	}, nil
}

func NewClient(base *url.URL, http *http.Client) *Client {
	return &Client{
		base: base,
		http: http,
	}
}

func (c *Client) do(ctx context.Context, method, path string, reqData, respData any) error {
	var reqBody io.Reader
	var data []byte
	var err error

	switch reqData := reqData.(type) {
	case io.Reader:
		reqBody = reqData
	case nil:
		// kein Body
	default:
		data, err = json.Marshal(reqData)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}

	requestURL := c.base.JoinPath(path)
	request, err := http.NewRequestWithContext(ctx, method, requestURL.String(), reqBody)
	if err != nil {
		return err
	}

	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")
	request.Header.Set("User-Agent", fmt.Sprintf("merlion/%s (%s %s) Go/%s", version.Version, runtime.GOARCH, runtime.GOOS, runtime.Version()))

	respObj, err := c.http.Do(request)
	if err != nil {
		return err
	}
	defer respObj.Body.Close()

	respBody, err := io.ReadAll(respObj.Body)
	if err != nil {
		return err
	}

	if err := checkError(respObj, respBody); err != nil {
		return err
	}

	if len(respBody) > 0 && respData != nil {
		if err := json.Unmarshal(respBody, respData); err != nil {
			return err
		}
	}
	return nil
}

// Train trainiert ein Modell auf der mitgeschickten Zeitreihe und
// blockiert bis der Lauf abgeschlossen ist.
func (c *Client) Train(ctx context.Context, req *TrainRequest) (*TrainResponse, error) {
	var resp TrainResponse
	if err := c.do(ctx, http.MethodPost, "/api/train", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Forecast fragt eine Prognose eines gespeicherten Modells an.
func (c *Client) Forecast(ctx context.Context, req *ForecastRequest) (*ForecastResponse, error) {
	var resp ForecastResponse
	if err := c.do(ctx, http.MethodPost, "/api/forecast", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// List holt alle gespeicherten Modelle.
func (c *Client) List(ctx context.Context) (*ListResponse, error) {
	var lr ListResponse
	if err := c.do(ctx, http.MethodGet, "/api/models", nil, &lr); err != nil {
		return nil, err
	}
	return &lr, nil
}

// Show liefert Details eines Modells, inklusive Konfiguration und
// Tensor-Zusammenfassung des Checkpoints.
func (c *Client) Show(ctx context.Context, req *ShowRequest) (*ShowResponse, error) {
	var resp ShowResponse
	if err := c.do(ctx, http.MethodPost, "/api/show", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Delete entfernt ein Modell samt Checkpoint vom Server.
func (c *Client) Delete(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/api/models/"+name, nil, nil)
}

// Heartbeat prueft ob der Server erreichbar ist.
func (c *Client) Heartbeat(ctx context.Context) error {
	if err := c.do(ctx, http.MethodHead, "/", nil, nil); err != nil {
		return err
	}
	return nil
}

// Version liefert die Server-Version.
func (c *Client) Version(ctx context.Context) (string, error) {
	var version struct {
		Version string `json:"version"`
	}

	if err := c.do(ctx, http.MethodGet, "/api/version", nil, &version); err != nil {
		return "", err
	}

	return version.Version, nil
}
