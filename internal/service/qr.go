package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
)

// qrSigner produces redemption payloads bound to a specific purchase
// (or transaction, for batch menu redemption). The payload is a
// base64 JSON body plus an HMAC so the door scanner can verify it
// offline.
type qrSigner struct {
	secret []byte
}

func newQRSigner(secret string) *qrSigner {
	return &qrSigner{secret: []byte(secret)}
}

type qrBody struct {
	Kind          string `json:"kind"` // "ticket" or "menu"
	PurchaseID    string `json:"purchase_id,omitempty"`
	TransactionID string `json:"transaction_id"`
}

func (s *qrSigner) Sign(kind, purchaseID, transactionID string) string {
	raw, _ := json.Marshal(qrBody{Kind: kind, PurchaseID: purchaseID, TransactionID: transactionID})
	body := base64.RawURLEncoding.EncodeToString(raw)

	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(body))
	return body + "." + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a scanned payload and returns its body.
func (s *qrSigner) Verify(payload string) (*qrBody, bool) {
	for i := len(payload) - 1; i >= 0; i-- {
		if payload[i] != '.' {
			continue
		}
		body, sig := payload[:i], payload[i+1:]
		mac := hmac.New(sha256.New, s.secret)
		mac.Write([]byte(body))
		if !hmac.Equal([]byte(hex.EncodeToString(mac.Sum(nil))), []byte(sig)) {
			return nil, false
		}
		raw, err := base64.RawURLEncoding.DecodeString(body)
		if err != nil {
			return nil, false
		}
		var b qrBody
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, false
		}
		return &b, true
	}
	return nil, false
}
