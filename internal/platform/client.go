package platform

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/http/httpproxy"

	"git.home.luguber.info/inful/metadeploy/internal/config"
	"git.home.luguber.info/inful/metadeploy/internal/deploy"
	"git.home.luguber.info/inful/metadeploy/internal/foundation/errors"
	"git.home.luguber.info/inful/metadeploy/internal/logfields"
	"git.home.luguber.info/inful/metadeploy/internal/version"
)

// maxResponseBytes bounds a SOAP response read into memory.
const maxResponseBytes = 64 << 20

// Client logs in to the platform. It implements deploy.Authenticator.
type Client struct {
	httpClient *http.Client
	serverURL  string
	apiVersion string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client, for example in tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a client for serverURL (login.salesforce.com or
// test.salesforce.com) speaking apiVersion. Without an explicit proxy the
// HTTP(S)_PROXY and NO_PROXY environment variables apply.
func NewClient(serverURL, apiVersion string, proxy *config.ProxyConfig, opts ...Option) (*Client, error) {
	proxyFunc, err := newProxyFunc(proxy)
	if err != nil {
		return nil, err
	}
	c := &Client{
		httpClient: &http.Client{
			Timeout:   10 * time.Minute,
			Transport: &http.Transport{Proxy: proxyFunc},
		},
		serverURL:  strings.TrimSuffix(serverURL, "/"),
		apiVersion: apiVersion,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func newProxyFunc(proxy *config.ProxyConfig) (func(*http.Request) (*url.URL, error), error) {
	cfg := httpproxy.FromEnvironment()
	if proxy != nil && proxy.URL != "" {
		u, err := url.Parse(proxy.URL)
		if err != nil {
			return nil, errors.ConfigError("invalid proxy URL").WithCause(err).Build()
		}
		if proxy.Username != "" {
			u.User = url.UserPassword(proxy.Username, proxy.Password)
		}
		cfg = &httpproxy.Config{HTTPProxy: u.String(), HTTPSProxy: u.String()}
	}
	fn := cfg.ProxyFunc()
	return func(r *http.Request) (*url.URL, error) { return fn(r.URL) }, nil
}

// LoginURL is the partner endpoint used for authentication.
func (c *Client) LoginURL() string {
	return fmt.Sprintf("%s/services/Soap/u/%s", c.serverURL, c.apiVersion)
}

// Login exchanges credentials for a metadata session.
func (c *Client) Login(ctx context.Context, creds deploy.Credentials) (deploy.MetadataAPI, error) {
	req := loginRequest{Username: creds.Username, Password: creds.Password + creds.SecurityToken}
	var resp responseEnvelope
	if err := c.call(ctx, c.LoginURL(), "login", partnerNS, nil, req, &resp); err != nil {
		return nil, err
	}
	if resp.Body.Login == nil || resp.Body.Login.Result.SessionID == "" {
		return nil, errors.NewError(errors.CategoryAuth, "login response carried no session").Build()
	}
	r := resp.Body.Login.Result
	if r.PasswordExpired {
		return nil, errors.NewError(errors.CategoryAuth, "password expired").UserAction().Build()
	}
	slog.Debug("Logged in", logfields.URL(r.MetadataServerURL))
	return &Connection{client: c, endpoint: r.MetadataServerURL, sessionID: r.SessionID}, nil
}

// Connection is an authenticated Metadata API endpoint.
type Connection struct {
	client    *Client
	endpoint  string
	sessionID string
}

// Deploy submits a zip archive.
func (m *Connection) Deploy(ctx context.Context, zip []byte, opts deploy.WireOptions) (deploy.JobReference, error) {
	req := deployRequest{
		ZipFile: base64.StdEncoding.EncodeToString(zip),
		Options: deployOptionsXML{
			CheckOnly:       opts.CheckOnly,
			PerformRetrieve: opts.PerformRetrieve,
			RollbackOnError: opts.RollbackOnError,
			RunTests:        opts.RunTests,
			SinglePackage:   opts.SinglePackage,
			TestLevel:       string(opts.TestLevel),
		},
	}
	var resp responseEnvelope
	if err := m.client.call(ctx, m.endpoint, "deploy", metadataNS, m.header(), req, &resp); err != nil {
		return "", err
	}
	if resp.Body.Deploy == nil || resp.Body.Deploy.Result.ID == "" {
		return "", errors.SubmissionError("deploy response carried no job id").Build()
	}
	return deploy.JobReference(resp.Body.Deploy.Result.ID), nil
}

// CheckDeployStatus fetches the job status, with component and test detail
// when includeDetails is set.
func (m *Connection) CheckDeployStatus(ctx context.Context, job deploy.JobReference, includeDetails bool) (*deploy.Status, error) {
	req := checkDeployStatusRequest{AsyncProcessID: string(job), IncludeDetails: includeDetails}
	var resp responseEnvelope
	if err := m.client.call(ctx, m.endpoint, "checkDeployStatus", metadataNS, m.header(), req, &resp); err != nil {
		return nil, err
	}
	if resp.Body.CheckDeployStatus == nil {
		return nil, errors.NewError(errors.CategorySubmission, "empty checkDeployStatus response").
			WithContext("job_ref", string(job)).
			Build()
	}
	return toStatus(resp.Body.CheckDeployStatus.Result), nil
}

func (m *Connection) header() *requestHeader {
	return &requestHeader{Session: sessionHeader{SessionID: m.sessionID}}
}

func (c *Client) call(ctx context.Context, endpoint, action, ns string, hdr *requestHeader, payload any, out *responseEnvelope) error {
	env := requestEnvelope{SoapNS: envelopeNS, NS: ns, Header: hdr, Body: requestBody{Payload: payload}}
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	if err := xml.NewEncoder(&buf).Encode(env); err != nil {
		return errors.InternalError("encode SOAP request").WithCause(err).WithContext("operation", action).Build()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return errors.SubmissionError("failed to create request").
			WithCause(err).
			WithContext("url", endpoint).
			Build()
	}
	req.Header.Set("Content-Type", "text/xml; charset=UTF-8")
	req.Header.Set("SOAPAction", action)
	req.Header.Set("User-Agent", "metadeploy/"+version.Version)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.NetworkError("failed to execute platform request").
			WithCause(err).
			WithContext("operation", action).
			WithContext("url", endpoint).
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return errors.NetworkError("failed to read platform response").WithCause(err).WithContext("operation", action).Build()
	}
	if err := xml.Unmarshal(body, out); err != nil {
		snippet := string(body)
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		return errors.NewError(errors.CategorySubmission, "unexpected platform response").
			WithCause(err).
			WithContext("operation", action).
			WithContext("status", resp.StatusCode).
			WithContext("body", strings.ReplaceAll(snippet, "\n", " ")).
			Build()
	}
	if out.Body.Fault != nil {
		return out.Body.Fault.asError(action)
	}
	if resp.StatusCode >= 400 {
		return errors.NewError(errors.CategorySubmission, "platform request failed").
			WithContext("operation", action).
			WithContext("status", resp.StatusCode).
			Build()
	}
	return nil
}

func toStatus(r deployResultXML) *deploy.Status {
	st := &deploy.Status{
		ID:              deploy.JobReference(r.ID),
		Done:            r.Done,
		Success:         r.Success,
		CheckOnly:       r.CheckOnly,
		State:           r.Status,
		StateDetail:     r.StateDetail,
		ErrorStatusCode: r.ErrorStatusCode,
		ErrorMessage:    r.ErrorMessage,
		ComponentsTotal: r.NumberComponentsTotal,
		ComponentsDone:  r.NumberComponentsDeployed,
		ComponentErrors: r.NumberComponentErrors,
		TestsTotal:      r.NumberTestsTotal,
		TestsCompleted:  r.NumberTestsCompleted,
		TestErrors:      r.NumberTestErrors,
	}
	if r.Details == nil {
		return st
	}
	d := &deploy.Details{}
	for _, m := range r.Details.ComponentFailures {
		if m.Success {
			continue
		}
		d.ComponentFailures = append(d.ComponentFailures, deploy.ComponentFailure{
			FileName:      m.FileName,
			FullName:      m.FullName,
			ComponentType: m.ComponentType,
			Line:          m.LineNumber,
			Column:        m.ColumnNumber,
			Problem:       m.Problem,
		})
	}
	rtr := r.Details.RunTestResult
	d.RunTestResult.NumTestsRun = rtr.NumTestsRun
	d.RunTestResult.NumFailures = rtr.NumFailures
	for _, f := range rtr.Failures {
		d.RunTestResult.Failures = append(d.RunTestResult.Failures, deploy.TestFailure{
			Namespace:  f.Namespace,
			Name:       f.Name,
			Method:     f.MethodName,
			Message:    f.Message,
			StackTrace: f.StackTrace,
		})
	}
	for _, c := range rtr.CodeCoverage {
		d.RunTestResult.CodeCoverage = append(d.RunTestResult.CodeCoverage, deploy.ClassCoverage{
			Namespace: c.Namespace,
			Name:      c.Name,
			Locations: c.NumLocations,
			Uncovered: c.NumLocationsNotCovered,
		})
	}
	for _, w := range rtr.CodeCoverageWarnings {
		d.RunTestResult.CodeCoverageWarnings = append(d.RunTestResult.CodeCoverageWarnings, deploy.CoverageWarning{
			Namespace: w.Namespace,
			Name:      w.Name,
			Message:   w.Message,
		})
	}
	st.Details = d
	return st
}
