// Package server is the control-plane HTTP surface: status page, health
// check, pairing QR display, and the notification-trigger endpoints the
// backend calls to push messages at users.
package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/grabtexts/wabridge/pkg/bus"
	"github.com/grabtexts/wabridge/pkg/config"
	"github.com/grabtexts/wabridge/pkg/logger"
	"github.com/grabtexts/wabridge/pkg/session"
)

type Server struct {
	cfg    *config.Config
	sess   *session.Session
	sender bus.Sender
	newID  func() string

	srv *http.Server
	ln  net.Listener
}

func New(cfg *config.Config, sess *session.Session, sender bus.Sender, newID func() string) *Server {
	s := &Server{
		cfg:    cfg,
		sess:   sess,
		sender: sender,
		newID:  newID,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleHome)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /qr", s.handleQR)
	mux.HandleFunc("POST /send-payment-confirmation", s.handlePaymentConfirmation)
	mux.HandleFunc("POST /start-address-flow", s.handleAddressFlow)

	s.srv = &http.Server{
		Addr:    cfg.ListenAddr(),
		Handler: mux,
	}
	return s
}

// Start binds the listener synchronously and serves in the background, so
// the caller knows health checks are answerable before it brings up the
// transport.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.srv.Addr, err)
	}
	s.ln = ln

	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.ErrorCF("server", "http server stopped", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	logger.InfoCF("server", "control plane listening", map[string]interface{}{
		"addr": ln.Addr().String(),
	})
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	status := "⌛ Waiting for WhatsApp connection — scan the code at /qr"
	if s.sess.IsReady() {
		status = "✅ WhatsApp connected"
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>WhatsApp Bridge</title></head>
<body style="font-family: Arial, sans-serif; padding: 40px; text-align: center;">
  <h1>🤖 WhatsApp Bridge</h1>
  <p>%s</p>
  <p><a href="/qr">📱 QR code</a> · <a href="/health">🩺 Health</a></p>
</body>
</html>
`, status)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":               true,
		"state":            s.sess.State().String(),
		"whatsapp_ready":   s.sess.IsReady(),
		"has_qr":           s.sess.PairingCode() != "",
		"backend_chat_url": s.cfg.ChatURL(),
	})
}

func (s *Server) handleQR(w http.ResponseWriter, r *http.Request) {
	if s.sess.IsReady() {
		fmt.Fprint(w, "✅ WhatsApp connected. No QR needed.")
		return
	}

	code := s.sess.PairingCode()
	if code == "" {
		http.Error(w, "No QR yet. Wait or check logs.", http.StatusNotFound)
		return
	}

	png, err := qrcode.Encode(code, qrcode.Medium, 300)
	if err != nil {
		logger.ErrorCF("server", "QR render failed", map[string]interface{}{
			"error": err.Error(),
		})
		http.Error(w, "Failed to render QR code.", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>Scan WhatsApp QR</title><meta http-equiv="refresh" content="5"></head>
<body style="font-family: Arial, sans-serif; padding: 30px; text-align: center;">
  <h2>Scan this QR with WhatsApp</h2>
  <p>WhatsApp → Linked devices → Link a device</p>
  <img src="data:image/png;base64,%s" width="300" height="300" alt="WhatsApp QR Code">
  <p><small>The code rotates every minute; this page refreshes itself.</small></p>
  <p><a href="/">← Back</a></p>
</body>
</html>
`, base64.StdEncoding.EncodeToString(png))
}

type paymentRequest struct {
	Phone   interface{} `json:"phone"`
	OrderID interface{} `json:"order_id"`
}

func (s *Server) handlePaymentConfirmation(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if !s.decodeNotification(w, r, &req) {
		return
	}

	jid, ok := s.recipientJID(w, req.Phone)
	if !ok {
		return
	}

	body := fmt.Sprintf("✅ Payment received for your order #%v!\n"+
		"We will give you a call in a sec.\n"+
		"Contact support at %s", fmt.Sprint(req.OrderID), s.cfg.SupportContactURL)

	s.enqueueNotification(w, jid, body)
}

type addressFlowRequest struct {
	Phone    interface{} `json:"phone"`
	Item     string      `json:"item"`
	Quantity interface{} `json:"quantity"`
	Addons   []struct {
		Name string `json:"name"`
	} `json:"addons"`
}

func (s *Server) handleAddressFlow(w http.ResponseWriter, r *http.Request) {
	var req addressFlowRequest
	if !s.decodeNotification(w, r, &req) {
		return
	}

	jid, ok := s.recipientJID(w, req.Phone)
	if !ok {
		return
	}

	body := fmt.Sprintf("🧾 Order Summary:\n%v x %s\n", req.Quantity, req.Item)
	if len(req.Addons) > 0 {
		names := make([]string, 0, len(req.Addons))
		for _, a := range req.Addons {
			names = append(names, a.Name)
		}
		body += fmt.Sprintf("➕ Add-ons: %s\n", strings.Join(names, ", "))
	}
	body += "\n\n📍 Please type your *delivery address* to continue."

	s.enqueueNotification(w, jid, body)
}

// decodeNotification handles the shared preamble of the notification
// endpoints: the session must be ready and the body must be JSON.
func (s *Server) decodeNotification(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if !s.sess.IsReady() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"success": false,
			"error":   "WhatsApp not ready yet",
		})
		return false
	}

	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   "Invalid JSON body",
		})
		return false
	}
	return true
}

// recipientJID validates the phone field and renders it as a chat JID:
// digits only, "@c.us" suffix.
func (s *Server) recipientJID(w http.ResponseWriter, phone interface{}) (string, bool) {
	digits := digitsOnly(fmt.Sprint(phone))
	if phone == nil || digits == "" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   "Missing phone",
		})
		return "", false
	}
	return digits + "@c.us", true
}

func (s *Server) enqueueNotification(w http.ResponseWriter, jid, body string) {
	err := s.sender.Enqueue(bus.OutboundMessage{
		ID:          s.newID(),
		RecipientID: jid,
		Body:        body,
	})
	if err != nil {
		logger.ErrorCF("server", "failed to enqueue notification", map[string]interface{}{
			"recipient": jid,
			"error":     err.Error(),
		})
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"error":   "Failed to send message",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func digitsOnly(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			out = append(out, s[i])
		}
	}
	return string(out)
}
