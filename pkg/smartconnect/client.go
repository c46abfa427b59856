// Package smartconnect is a small client for Angel One SmartAPI covering what
// a portfolio sync needs: password+TOTP login, token refresh, profile,
// holdings and the trade book.
//
// Usage example:
//
//	sc := smartconnect.NewSmartConnect(smartconnect.Config{APIKey: "your_api_key"})
//	code, _ := totp.GenerateCode(totpSecret, time.Now())
//	if _, err := sc.GenerateSession(ctx, "CLIENTID", "PIN", code); err != nil { log.Fatal(err) }
//	resp, err := sc.Holding(ctx)
package smartconnect

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// ---- Config & client ----

type Config struct {
	APIKey      string
	AccessToken string

	RootURL        string        // default: https://apiconnect.angelone.in
	Debug          bool
	Timeout        time.Duration // default: 7s
	HTTPClient     *http.Client  // optional; Timeout is ignored when set
	Accept         string        // default: application/json
	UserType       string        // default: USER
	SourceID       string        // default: WEB
	ClientPublicIP string        // default 127.0.0.1
	ClientLocalIP  string        // default resolved, else 127.0.0.1
	ClientMAC      string        // default from interface MAC
}

type SmartConnect struct {
	apiKey string

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	feedToken    string
	userID       string

	rootURL    string
	debug      bool
	httpClient *http.Client

	// header fields
	accept         string
	userType       string
	sourceID       string
	clientPublicIP string
	clientLocalIP  string
	clientMAC      string

	// Optional callback for 403 TokenException
	SessionExpiryHook func()
}

const defaultRoot = "https://apiconnect.angelone.in"

var routes = map[string]string{
	"api.login":        "/rest/auth/angelbroking/user/v1/loginByPassword",
	"api.token":        "/rest/auth/angelbroking/jwt/v1/generateTokens",
	"api.user.profile": "/rest/secure/angelbroking/user/v1/getProfile",

	"api.trade.book": "/rest/secure/angelbroking/order/v1/getTradeBook",
	"api.holding":    "/rest/secure/angelbroking/portfolio/v1/getHolding",
}

// Response is the SmartAPI envelope. Raw keeps the undecoded body.
type Response struct {
	Status    bool            `json:"status"`
	Message   string          `json:"message"`
	ErrorCode string          `json:"errorcode"`
	Data      json.RawMessage `json:"data"`
	Raw       []byte          `json:"-"`
}

// APIError is returned when SmartAPI answers with status=false or an
// error_type envelope.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("smartapi %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// GetLocalIP finds your local IP address
func GetLocalIP() (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", err
	}

	for _, address := range addrs {
		// Check if it's an IP address and not a loopback
		if ipNet, ok := address.(*net.IPNet); ok && !ipNet.IP.IsLoopback() {
			if ipNet.IP.To4() != nil {
				return ipNet.IP.String(), nil
			}
		}
	}
	return "", fmt.Errorf("no local IP found")
}

// NewSmartConnect initializes the client with defaults filled in.
func NewSmartConnect(cfg Config) *SmartConnect {
	if cfg.RootURL == "" {
		cfg.RootURL = defaultRoot
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 7 * time.Second
	}
	if cfg.Accept == "" {
		cfg.Accept = "application/json"
	}
	if cfg.UserType == "" {
		cfg.UserType = "USER"
	}
	if cfg.SourceID == "" {
		cfg.SourceID = "WEB"
	}
	if cfg.ClientLocalIP == "" {
		localIP, err := GetLocalIP()
		if err != nil {
			log.Printf("[smartconnect] local IP lookup failed: %v", err)
		}
		cfg.ClientLocalIP = firstNonEmpty(localIP, "127.0.0.1")
	}
	cfg.ClientPublicIP = firstNonEmpty(cfg.ClientPublicIP, "127.0.0.1")
	if cfg.ClientMAC == "" {
		cfg.ClientMAC = getMACFallback()
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &SmartConnect{
		apiKey:         cfg.APIKey,
		accessToken:    cfg.AccessToken,
		rootURL:        strings.TrimRight(cfg.RootURL, "/"),
		debug:          cfg.Debug,
		httpClient:     client,
		accept:         cfg.Accept,
		userType:       cfg.UserType,
		sourceID:       cfg.SourceID,
		clientPublicIP: cfg.ClientPublicIP,
		clientLocalIP:  cfg.ClientLocalIP,
		clientMAC:      cfg.ClientMAC,
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func getMACFallback() string {
	ifs, _ := net.Interfaces()
	for _, ifc := range ifs {
		if len(ifc.HardwareAddr) > 0 {
			return ifc.HardwareAddr.String()
		}
	}
	return "00:11:22:33:44:55"
}

// ---- Helpers ----

func (sc *SmartConnect) requestHeaders() http.Header {
	h := http.Header{}
	h.Set("Content-Type", sc.accept)
	h.Set("Accept", sc.accept)
	h.Set("X-ClientLocalIP", sc.clientLocalIP)
	h.Set("X-ClientPublicIP", sc.clientPublicIP)
	h.Set("X-MACAddress", sc.clientMAC)
	h.Set("X-PrivateKey", sc.apiKey)
	h.Set("X-UserType", sc.userType)
	h.Set("X-SourceID", sc.sourceID)
	if tok := sc.AccessToken(); tok != "" {
		h.Set("Authorization", "Bearer "+tok)
	}
	return h
}

func (sc *SmartConnect) buildURL(route string) (string, error) {
	uri, ok := routes[route]
	if !ok {
		return "", fmt.Errorf("unknown route: %s", route)
	}
	return sc.rootURL + uri, nil
}

func (sc *SmartConnect) doRequest(ctx context.Context, method, route string, params map[string]any) (*Response, error) {
	fullURL, err := sc.buildURL(route)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	reqURL := fullURL

	if method == http.MethodGet {
		if len(params) > 0 {
			q := url.Values{}
			for k, v := range params {
				q.Set(k, fmt.Sprint(v))
			}
			reqURL += "?" + q.Encode()
		}
	} else {
		if params == nil {
			params = map[string]any{}
		}
		b, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, err
	}
	req.Header = sc.requestHeaders()

	if sc.debug {
		log.Printf("[smartconnect] request: %s %s", method, reqURL)
	}

	resp, err := sc.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, route, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if sc.debug {
		log.Printf("[smartconnect] response: code=%d bytes=%d", resp.StatusCode, len(raw))
	}

	// Handle API error style: {"error_type": "TokenException", "message": "..."}
	var envelope struct {
		ErrorType string `json:"error_type"`
		Message   string `json:"message"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("couldn't parse JSON response (HTTP %d): %w", resp.StatusCode, err)
	}
	if envelope.ErrorType != "" {
		if sc.SessionExpiryHook != nil && resp.StatusCode == http.StatusForbidden && envelope.ErrorType == "TokenException" {
			sc.SessionExpiryHook()
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Code: envelope.ErrorType, Message: envelope.Message}
	}

	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("couldn't parse JSON response: %w", err)
	}
	out.Raw = raw
	if resp.StatusCode >= 300 || !out.Status {
		return &out, &APIError{StatusCode: resp.StatusCode, Code: out.ErrorCode, Message: out.Message}
	}
	return &out, nil
}

func (sc *SmartConnect) get(ctx context.Context, route string, params map[string]any) (*Response, error) {
	return sc.doRequest(ctx, http.MethodGet, route, params)
}

func (sc *SmartConnect) post(ctx context.Context, route string, params map[string]any) (*Response, error) {
	return sc.doRequest(ctx, http.MethodPost, route, params)
}

// ---- Setters/Getters ----

func (sc *SmartConnect) AccessToken() string {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.accessToken
}

func (sc *SmartConnect) FeedToken() string {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.feedToken
}

func (sc *SmartConnect) UserID() string {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.userID
}

// ---- API Methods ----

// Session is the token set issued on login.
type Session struct {
	JWTToken     string `json:"jwtToken"`
	RefreshToken string `json:"refreshToken"`
	FeedToken    string `json:"feedToken"`
}

// GenerateSession logs in with client code, PIN and a current TOTP code and
// stores the issued tokens on the client.
func (sc *SmartConnect) GenerateSession(ctx context.Context, clientCode, password, totp string) (*Session, error) {
	params := map[string]any{"clientcode": clientCode, "password": password, "totp": totp}
	res, err := sc.post(ctx, "api.login", params)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	var s Session
	if err := json.Unmarshal(res.Data, &s); err != nil || s.JWTToken == "" {
		return nil, errors.New("unexpected login response format")
	}

	sc.mu.Lock()
	sc.accessToken = s.JWTToken
	sc.refreshToken = s.RefreshToken
	sc.feedToken = s.FeedToken
	sc.userID = clientCode
	sc.mu.Unlock()

	return &s, nil
}

// GenerateToken refreshes the JWT using the stored refresh token.
func (sc *SmartConnect) GenerateToken(ctx context.Context) error {
	sc.mu.RLock()
	rt := sc.refreshToken
	sc.mu.RUnlock()

	res, err := sc.post(ctx, "api.token", map[string]any{"refreshToken": rt})
	if err != nil {
		return err
	}
	var s Session
	if err := json.Unmarshal(res.Data, &s); err != nil {
		return err
	}
	sc.mu.Lock()
	if s.JWTToken != "" {
		sc.accessToken = s.JWTToken
	}
	if s.FeedToken != "" {
		sc.feedToken = s.FeedToken
	}
	sc.mu.Unlock()
	return nil
}

func (sc *SmartConnect) GetProfile(ctx context.Context) (*Response, error) {
	sc.mu.RLock()
	rt := sc.refreshToken
	sc.mu.RUnlock()
	return sc.get(ctx, "api.user.profile", map[string]any{"refreshToken": rt})
}

func (sc *SmartConnect) TradeBook(ctx context.Context) (*Response, error) {
	return sc.get(ctx, "api.trade.book", nil)
}

func (sc *SmartConnect) Holding(ctx context.Context) (*Response, error) {
	return sc.get(ctx, "api.holding", nil)
}
