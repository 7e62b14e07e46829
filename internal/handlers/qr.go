// internal/handlers/qr.go
package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/skip2/go-qrcode"
)

// qrSize is a mobile-friendly PNG edge in pixels.
const qrSize = 320

// qrCode renders the room's join link as a PNG.
func (s *Server) qrCode(w http.ResponseWriter, r *http.Request) {
	room, err := s.Rooms.GetRoom(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, s.Logger, err)
		return
	}

	png, err := qrcode.Encode(s.Settings.JoinURL(room.Code), qrcode.Medium, qrSize)
	if err != nil {
		writeError(w, s.Logger, fmt.Errorf("qr generation failed: %w", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(png)
}
