package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"github.com/vx-labs/backbone-router/backbone"
	"github.com/vx-labs/backbone-router/bbr"
	"github.com/vx-labs/backbone-router/topology"
	"go.uber.org/zap"
)

func prefixVersion(suffix string) string {
	return fmt.Sprintf("/v1/%s", suffix)
}

type errorView struct {
	Status     string `json:"status"`
	StatusCode int    `json:"status_code"`
	Error      string `json:"error"`
}

func statusCode(err error) int {
	switch pkgerrors.Cause(err) {
	case bbr.ErrInvalidArgs, topology.ErrInvalidMeshLocalPrefix:
		return http.StatusBadRequest
	case bbr.ErrNotFound:
		return http.StatusNotFound
	case bbr.ErrInvalidState:
		return http.StatusConflict
	case backbone.ErrStopped:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func httpFail(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(errorView{
		Status:     strings.ReplaceAll(http.StatusText(code), " ", ""),
		StatusCode: code,
		Error:      err.Error(),
	})
}

func httpReply(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil {
		httpFail(w, http.StatusBadRequest, pkgerrors.Wrap(err, "invalid request body"))
		return false
	}
	return true
}

func (b *api) handleState(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPut:
		var req enabledRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if err := b.backend.SetEnabled(req.Enabled); err != nil {
			httpFail(w, statusCode(err), err)
			return
		}
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	status, err := b.backend.Status()
	if err != nil {
		httpFail(w, statusCode(err), err)
		return
	}
	httpReply(w, newStateView(status))
}

func (b *api) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := b.backend.Reset(); err != nil {
		httpFail(w, statusCode(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (b *api) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPut:
		var req configView
		if !decodeBody(w, r, &req) {
			return
		}
		if err := b.backend.SetConfig(req.config()); err != nil {
			httpFail(w, statusCode(err), err)
			return
		}
		if req.RegistrationJitter != nil {
			if err := b.backend.SetRegistrationJitter(*req.RegistrationJitter); err != nil {
				httpFail(w, statusCode(err), err)
				return
			}
		}
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	config, err := b.backend.Config()
	if err != nil {
		httpFail(w, statusCode(err), err)
		return
	}
	httpReply(w, newConfigView(config))
}

func (b *api) handleDomainPrefix(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPut:
		var req prefixView
		if !decodeBody(w, r, &req) {
			return
		}
		if err := b.backend.SetDomainPrefix(req.config()); err != nil {
			httpFail(w, statusCode(err), err)
			return
		}
	case http.MethodDelete:
		prefix, err := netip.ParsePrefix(r.URL.Query().Get("prefix"))
		if err != nil {
			httpFail(w, http.StatusBadRequest, pkgerrors.Wrap(err, "invalid prefix"))
			return
		}
		if err := b.backend.RemoveDomainPrefix(prefix); err != nil {
			httpFail(w, statusCode(err), err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	config, err := b.backend.DomainPrefix()
	if err != nil {
		httpFail(w, statusCode(err), err)
		return
	}
	httpReply(w, newPrefixView(config))
}

func (b *api) handleMeshPrefix(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req meshPrefixRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := b.backend.SetMeshLocalPrefix(req.Prefix); err != nil {
		httpFail(w, statusCode(err), err)
		return
	}
	httpReply(w, req)
}

func (b *api) handleBackup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var buf bytes.Buffer
	if err := b.backend.Backup(&buf); err != nil {
		httpFail(w, statusCode(err), err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="bbrd.db"`)
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}

// Handler returns the API routes.
func (b *api) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(prefixVersion("bbr/state"), b.handleState)
	mux.HandleFunc(prefixVersion("bbr/reset"), b.handleReset)
	mux.HandleFunc(prefixVersion("bbr/config"), b.handleConfig)
	mux.HandleFunc(prefixVersion("bbr/domain-prefix"), b.handleDomainPrefix)
	mux.HandleFunc(prefixVersion("mesh/prefix"), b.handleMeshPrefix)
	mux.HandleFunc(prefixVersion("backup"), b.handleBackup)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mux.ServeHTTP(w, r)
		b.logger.Debug("served api request",
			zap.String("http_method", r.Method),
			zap.String("http_path", r.URL.Path),
			zap.String("remote_address", r.RemoteAddr))
	})
}

func (b *api) Serve(port int) (net.Listener, error) {
	if port == 0 {
		port = b.config.TcpPort
	}
	ln, err := net.Listen("tcp", net.JoinHostPort(b.config.BindAddress, fmt.Sprint(port)))
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to start API listener")
	}
	b.listeners = append(b.listeners, ln)
	b.logger.Info("started API listener", zap.String("api_address", ln.Addr().String()))
	go http.Serve(ln, b.Handler())
	return ln, nil
}

func (b *api) Shutdown() {
	for _, lis := range b.listeners {
		lis.Close()
	}
}

func (b *api) Health() string {
	return "ok"
}
