package wunderground

import (
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/alepar/weatherstation/station"
)

const DefaultURL = "https://rtupdate.wunderground.com/weatherstation/updateweatherstation.php"

const dateFormat = "2006-01-02 15:04:05"

// Client uploads snapshots with the personal weather station protocol.
type Client struct {
	url        string
	secret     Secret
	httpClient *http.Client
}

type Option func(*Client)

func WithURL(u string) Option {
	return func(c *Client) {
		c.url = u
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func NewClient(secret Secret, opts ...Option) *Client {
	c := &Client{
		url:    DefaultURL,
		secret: secret,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string {
	return "wunderground"
}

// Values builds the upload query. The secondary sensor is the outdoor one,
// hence humidity and tempf come from it.
func (c *Client) Values(s station.Snapshot) url.Values {
	v := url.Values{}
	v.Set("action", "updateraw")
	v.Set("ID", c.secret.ID)
	v.Set("PASSWORD", c.secret.UploadKey)
	v.Set("dateutc", s.Time.UTC().Format(dateFormat))
	// humidity - [% outdoor humidity 0-100%]
	v.Set("humidity", formatFloat(s.Secondary.Humidity))
	v.Set("tempf", formatFloat(s.Secondary.Fahrenheit()))
	v.Set("temp2f", formatFloat(s.Precision.Fahrenheit()))
	v.Set("temp3f", formatFloat(s.Barometric.Fahrenheit()))
	// baromin - [barometric pressure inches hg (mercury)]
	v.Set("baromin", formatFloat(s.Barometric.InHg()))
	v.Set("realtime", "1")
	// Frequency in seconds.
	v.Set("rtfreg", "10")
	return v
}

// Send uploads one snapshot. The response body is discarded; only
// transport errors and non-2xx statuses are reported.
func (c *Client) Send(s station.Snapshot) error {
	u := c.url + "?" + c.Values(s).Encode()
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return errors.Wrap(err, "couldn't build upload request")
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "upload failed")
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return errors.Errorf("upload rejected: %s", res.Status)
	}
	log.Debugf("uploaded readings for station %s", c.secret.ID)
	return nil
}

func formatFloat(v float32) string {
	return strconv.FormatFloat(float64(v), 'f', -1, 32)
}
