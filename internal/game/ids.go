package game

import (
	"crypto/rand"
	"math/big"
)

const (
	roomCodeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	playerIDCharset = "abcdefghijklmnopqrstuvwxyz0123456789"

	roomCodeLength = 4
	playerIDLength = 8
)

func randomString(charset string, length int) string {
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			// crypto/rand only fails if the OS entropy source is broken;
			// fall back to the first character rather than abort a join.
			out[i] = charset[0]
			continue
		}
		out[i] = charset[n.Int64()]
	}
	return string(out)
}

// NewRoomCode returns a 4-character uppercase alphanumeric room code.
func NewRoomCode() string {
	return randomString(roomCodeCharset, roomCodeLength)
}

// NewPlayerID returns an 8-character alphanumeric player id.
func NewPlayerID() string {
	return randomString(playerIDCharset, playerIDLength)
}
