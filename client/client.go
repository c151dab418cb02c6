package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/florann/databend/errors"
)

const maxBufferedLines = 1000

// Client is a simple client used for planning statements against Databend, it is used
// by the CLI and elsewhere. It talks to the Databend HTTP API and owns one session on
// the server, created on Start and closed on Stop.
type Client struct {
	lock          sync.Mutex
	started       bool
	serverAddress string
	httpClient    *http.Client
	sessionID     string
	user          string
	password      string
}

func NewClient(serverAddress string) *Client {
	return &Client{
		serverAddress: serverAddress,
	}
}

// SetCredentials sets the user the client's session is authenticated as on Start.
func (c *Client) SetCredentials(user string, password string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.user = user
	c.password = password
}

func (c *Client) Start() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.started {
		return nil
	}
	c.httpClient = &http.Client{}
	uri := fmt.Sprintf("http://%s/databend/sessions", c.serverAddress)
	if c.user != "" {
		uri = fmt.Sprintf("%s?user=%s&password=%s", uri, url.QueryEscape(c.user), url.QueryEscape(c.password))
	}
	resp, err := c.httpClient.Post(uri, "", nil) //nolint:bodyclose
	if err != nil {
		return errors.WithStack(err)
	}
	defer closeResponseBody(resp)
	if resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}
	var sr struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return errors.WithStack(err)
	}
	c.sessionID = sr.SessionID
	c.started = true
	return nil
}

func (c *Client) Stop() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if !c.started {
		return nil
	}
	c.started = false
	req, err := http.NewRequest(http.MethodDelete,
		fmt.Sprintf("http://%s/databend/sessions/%s", c.serverAddress, c.sessionID), nil)
	if err != nil {
		return errors.WithStack(err)
	}
	resp, err := c.httpClient.Do(req) //nolint:bodyclose
	c.httpClient.CloseIdleConnections()
	if err != nil {
		return errors.WithStack(err)
	}
	defer closeResponseBody(resp)
	if resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}
	return nil
}

func (c *Client) SessionID() string {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.sessionID
}

// ExecuteStatement plans a statement on the server. Lines of output will be received on
// the channel that is returned. When the channel is closed, the results are complete.
func (c *Client) ExecuteStatement(statement string) (chan string, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if !c.started {
		return nil, errors.New("not started")
	}
	statement = strings.TrimSuffix(statement, ";")
	ch := make(chan string, maxBufferedLines)
	go c.doExecuteStatement(statement, ch)
	return ch, nil
}

func (c *Client) doExecuteStatement(statement string, ch chan string) {
	if err := c.doExecuteStatementWithError(statement, ch); err != nil {
		ch <- fmt.Sprintf("Failed to execute statement: %s", err.Error())
	}
	close(ch)
}

func (c *Client) doExecuteStatementWithError(statement string, ch chan string) error {
	trimmed := strings.TrimSpace(statement)
	lower := strings.ToLower(trimmed)
	switch {
	case lower == "topology":
		return c.topology(ch)
	case lower == "settings":
		return c.settings(ch)
	case lower == "set" || strings.HasPrefix(lower, "set "):
		return c.setSetting(trimmed)
	}
	uri := fmt.Sprintf("http://%s/databend/explain?session=%s&stmt=%s",
		c.serverAddress, c.sessionID, url.QueryEscape(statement))
	resp, err := c.httpClient.Get(uri) //nolint:bodyclose
	if err != nil {
		return errors.WithStack(err)
	}
	defer closeResponseBody(resp)
	if resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.WithStack(err)
	}
	for _, line := range strings.Split(string(body), "\n") {
		ch <- line
	}
	return nil
}

func (c *Client) topology(ch chan string) error {
	resp, err := c.httpClient.Get(fmt.Sprintf("http://%s/databend/topology", c.serverAddress)) //nolint:bodyclose
	if err != nil {
		return errors.WithStack(err)
	}
	defer closeResponseBody(resp)
	if resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}
	var tr struct {
		LocalID string `json:"local_id"`
		Nodes   []struct {
			ID     string `json:"id"`
			SeqNum uint64 `json:"seq_num"`
			Addr   string `json:"addr"`
		} `json:"nodes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return errors.WithStack(err)
	}
	if len(tr.Nodes) == 0 {
		ch <- "standalone server, no cluster members"
		return nil
	}
	for _, node := range tr.Nodes {
		line := fmt.Sprintf("%s %s", node.ID, node.Addr)
		if node.ID == tr.LocalID {
			line += " (local)"
		}
		ch <- line
	}
	return nil
}

// setSetting updates a setting of the client's session on the server. Statements planned
// after the change pick up the new value.
func (c *Client) setSetting(statement string) error {
	parts := strings.Split(statement, " ")
	if len(parts) != 3 {
		return errors.New("Invalid set command. Should be set <setting_name> <setting_value>")
	}
	name := strings.ToLower(parts[1])
	uri := fmt.Sprintf("http://%s/databend/sessions/%s/settings?name=%s&value=%s",
		c.serverAddress, c.sessionID, url.QueryEscape(name), url.QueryEscape(parts[2]))
	resp, err := c.httpClient.Post(uri, "", nil) //nolint:bodyclose
	if err != nil {
		return errors.WithStack(err)
	}
	defer closeResponseBody(resp)
	if resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}
	return nil
}

// settings prints the session's settings one per line, in name order.
func (c *Client) settings(ch chan string) error {
	uri := fmt.Sprintf("http://%s/databend/sessions/%s/settings", c.serverAddress, c.sessionID)
	resp, err := c.httpClient.Get(uri) //nolint:bodyclose
	if err != nil {
		return errors.WithStack(err)
	}
	defer closeResponseBody(resp)
	if resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}
	var snapshot map[string]int64
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return errors.WithStack(err)
	}
	names := make([]string, 0, len(snapshot))
	for name := range snapshot {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ch <- fmt.Sprintf("%s = %d", name, snapshot[name])
	}
	return nil
}

func responseError(resp *http.Response) error {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.New(strings.TrimSuffix(string(bodyBytes), "\n"))
}

func closeResponseBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		log.Errorf("failed to close http response %v", err)
	}
}
