package platform

import (
	"encoding/xml"
	"strings"

	"git.home.luguber.info/inful/metadeploy/internal/foundation/errors"
)

const (
	envelopeNS = "http://schemas.xmlsoap.org/soap/envelope/"
	partnerNS  = "urn:partner.soap.sforce.com"
	metadataNS = "http://soap.sforce.com/2006/04/metadata"
)

type requestEnvelope struct {
	XMLName xml.Name       `xml:"soapenv:Envelope"`
	SoapNS  string         `xml:"xmlns:soapenv,attr"`
	NS      string         `xml:"xmlns,attr"`
	Header  *requestHeader `xml:"soapenv:Header,omitempty"`
	Body    requestBody    `xml:"soapenv:Body"`
}

type requestHeader struct {
	Session sessionHeader `xml:"SessionHeader"`
}

type sessionHeader struct {
	SessionID string `xml:"sessionId"`
}

type requestBody struct {
	Payload any
}

type loginRequest struct {
	XMLName  xml.Name `xml:"login"`
	Username string   `xml:"username"`
	Password string   `xml:"password"`
}

type deployRequest struct {
	XMLName xml.Name         `xml:"deploy"`
	ZipFile string           `xml:"ZipFile"`
	Options deployOptionsXML `xml:"DeployOptions"`
}

type deployOptionsXML struct {
	CheckOnly       bool     `xml:"checkOnly"`
	PerformRetrieve bool     `xml:"performRetrieve"`
	RollbackOnError bool     `xml:"rollbackOnError"`
	RunTests        []string `xml:"runTests,omitempty"`
	SinglePackage   bool     `xml:"singlePackage"`
	TestLevel       string   `xml:"testLevel,omitempty"`
}

type checkDeployStatusRequest struct {
	XMLName        xml.Name `xml:"checkDeployStatus"`
	AsyncProcessID string   `xml:"asyncProcessId"`
	IncludeDetails bool     `xml:"includeDetails"`
}

// Responses are matched on local names only.
type responseEnvelope struct {
	Body struct {
		Fault             *soapFault         `xml:"Fault"`
		Login             *loginResponse     `xml:"loginResponse"`
		Deploy            *asyncResponse     `xml:"deployResponse"`
		CheckDeployStatus *deployResultReply `xml:"checkDeployStatusResponse"`
	} `xml:"Body"`
}

type soapFault struct {
	Code   string `xml:"faultcode"`
	String string `xml:"faultstring"`
}

type loginResponse struct {
	Result struct {
		MetadataServerURL string `xml:"metadataServerUrl"`
		ServerURL         string `xml:"serverUrl"`
		SessionID         string `xml:"sessionId"`
		PasswordExpired   bool   `xml:"passwordExpired"`
	} `xml:"result"`
}

type asyncResponse struct {
	Result struct {
		ID    string `xml:"id"`
		Done  bool   `xml:"done"`
		State string `xml:"state"`
	} `xml:"result"`
}

type deployResultReply struct {
	Result deployResultXML `xml:"result"`
}

type deployResultXML struct {
	ID                       string      `xml:"id"`
	Done                     bool        `xml:"done"`
	Success                  bool        `xml:"success"`
	CheckOnly                bool        `xml:"checkOnly"`
	Status                   string      `xml:"status"`
	StateDetail              string      `xml:"stateDetail"`
	ErrorStatusCode          string      `xml:"errorStatusCode"`
	ErrorMessage             string      `xml:"errorMessage"`
	NumberComponentsTotal    int         `xml:"numberComponentsTotal"`
	NumberComponentsDeployed int         `xml:"numberComponentsDeployed"`
	NumberComponentErrors    int         `xml:"numberComponentErrors"`
	NumberTestsTotal         int         `xml:"numberTestsTotal"`
	NumberTestsCompleted     int         `xml:"numberTestsCompleted"`
	NumberTestErrors         int         `xml:"numberTestErrors"`
	Details                  *detailsXML `xml:"details"`
}

type detailsXML struct {
	ComponentFailures []componentMessageXML `xml:"componentFailures"`
	RunTestResult     struct {
		NumTestsRun          int                  `xml:"numTestsRun"`
		NumFailures          int                  `xml:"numFailures"`
		Failures             []testFailureXML     `xml:"failures"`
		CodeCoverage         []codeCoverageXML    `xml:"codeCoverage"`
		CodeCoverageWarnings []coverageWarningXML `xml:"codeCoverageWarnings"`
	} `xml:"runTestResult"`
}

type componentMessageXML struct {
	FileName      string `xml:"fileName"`
	FullName      string `xml:"fullName"`
	ComponentType string `xml:"componentType"`
	LineNumber    int    `xml:"lineNumber"`
	ColumnNumber  int    `xml:"columnNumber"`
	Problem       string `xml:"problem"`
	Success       bool   `xml:"success"`
}

type testFailureXML struct {
	Namespace  string `xml:"namespace"`
	Name       string `xml:"name"`
	MethodName string `xml:"methodName"`
	Message    string `xml:"message"`
	StackTrace string `xml:"stackTrace"`
}

type codeCoverageXML struct {
	Namespace              string `xml:"namespace"`
	Name                   string `xml:"name"`
	NumLocations           int    `xml:"numLocations"`
	NumLocationsNotCovered int    `xml:"numLocationsNotCovered"`
}

type coverageWarningXML struct {
	Namespace string `xml:"namespace"`
	Name      string `xml:"name"`
	Message   string `xml:"message"`
}

func (f *soapFault) asError(op string) error {
	category := errors.CategorySubmission
	code := f.Code
	if i := strings.LastIndex(code, ":"); i >= 0 {
		code = code[i+1:]
	}
	switch code {
	case "INVALID_LOGIN", "INVALID_SESSION_ID", "LOGIN_MUST_USE_SECURITY_TOKEN", "PASSWORD_LOCKOUT":
		category = errors.CategoryAuth
	}
	return errors.NewError(category, f.String).
		WithContext("operation", op).
		WithContext("fault_code", code).
		Build()
}
