package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime"

	"github.com/gin-gonic/gin"

	"github.com/xraph/turnstile"
)

// proxyBody is the subset of the forwarded payload the gateway inspects.
type proxyBody struct {
	Method string `json:"method"`
}

// adminRequest carries the admin secret and the key an admin operation
// targets.
type adminRequest struct {
	Auth string `json:"auth"`
	Key  string `json:"key"`
}

// handleProxy authorizes, forwards, and accounts one call. The token is
// the request path.
func (s *Server) handleProxy(c *gin.Context) {
	token := c.Param("token")

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read body"})
		return
	}

	// A body that does not parse has no method; the gateway refuses it.
	var pb proxyBody
	_ = json.Unmarshal(body, &pb) //nolint:errcheck // malformed body handled as missing method

	resp, err := s.gw.Proxy(c.Request.Context(), token, pb.Method, body)
	if err != nil {
		switch {
		case errors.Is(err, turnstile.ErrUnauthorized):
			c.JSON(http.StatusForbidden, gin.H{"error": "api key not authorized"})
		case errors.Is(err, turnstile.ErrMethodRequired):
			c.JSON(http.StatusNotFound, gin.H{"error": "method is required"})
		case errors.Is(err, turnstile.ErrMethodForbidden):
			c.JSON(http.StatusForbidden, gin.H{"error": "method not allowed"})
		default:
			// Routing failure; the call was still counted.
			c.JSON(http.StatusBadGateway, gin.H{"error": "no backend available"})
		}
		return
	}

	c.Data(resp.Status, "application/json", resp.Body)
}

// handleVersion reports the build and runtime platform.
func (s *Server) handleVersion(c *gin.Context) {
	c.String(http.StatusOK, fmt.Sprintf("turnstile-%s/%s-%s/%s",
		turnstile.Version, runtime.GOOS, runtime.GOARCH, runtime.Version()))
}

// handleStatus reports node liveness and client count. 503 when no
// backend node is alive.
func (s *Server) handleStatus(c *gin.Context) {
	st := s.gw.Status()

	code := http.StatusOK
	if st.Alive == 0 {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":  code,
		"alive":   st.Alive,
		"dead":    st.Dead,
		"clients": st.Clients,
	})
}

// handleAddKey provisions a key. An omitted key generates one.
func (s *Server) handleAddKey(c *gin.Context) {
	var req adminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid request body"})
		return
	}

	key, err := s.gw.AddKey(c.Request.Context(), req.Key)
	if err != nil {
		if errors.Is(err, turnstile.ErrKeyExists) {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "key already exists"})
			return
		}
		s.logger.Error("addkey failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "store error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "key": key})
}

// handleRemoveKey revokes a key. Requires the admin secret.
func (s *Server) handleRemoveKey(c *gin.Context) {
	var req adminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid request body"})
		return
	}

	err := s.gw.RemoveKey(c.Request.Context(), req.Auth, req.Key)
	if err != nil {
		switch {
		case errors.Is(err, turnstile.ErrAdminForbidden):
			c.JSON(http.StatusForbidden, gin.H{"success": false, "message": "auth failed"})
		case errors.Is(err, turnstile.ErrKeyNotFound):
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "key does not exist"})
		default:
			s.logger.Error("removekey failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "store error"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// handleStats reports per-method call counts for a key. Requires the
// admin secret.
func (s *Server) handleStats(c *gin.Context) {
	var req adminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid request body"})
		return
	}

	stats, err := s.gw.Stats(req.Auth, req.Key)
	if err != nil {
		switch {
		case errors.Is(err, turnstile.ErrAdminForbidden):
			c.JSON(http.StatusForbidden, gin.H{"success": false, "message": "auth failed"})
		case errors.Is(err, turnstile.ErrKeyNotFound):
			c.JSON(http.StatusOK, gin.H{"success": false})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"success": false})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "stats": stats})
}
