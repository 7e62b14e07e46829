// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes used by the room socket.
const (
	BadSubprotocolError   = 3000 // Client connected without the bingo subprotocol.
	InvalidAuthTokenError = 3001 // Identity could not be established.
	InvalidRoomCodeError  = 3003 // Room in the URL does not exist.
)
