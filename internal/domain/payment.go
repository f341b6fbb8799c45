package domain

import "github.com/marisol-labs/storefront-core/pkg/types"

// PaymentCollection groups the payment sessions opened against a cart.
type PaymentCollection struct {
	ID              string           `json:"id"`
	PaymentSessions []PaymentSession `json:"payment_sessions,omitempty"`
}

// PaymentSession carries the provider handoff data. Data stays a tagged JSON
// value; only the client secret has a typed accessor because it is the only
// field this subsystem reads.
type PaymentSession struct {
	ID         string      `json:"id"`
	ProviderID string      `json:"provider_id"`
	Data       types.Value `json:"data,omitempty"`
}

// ClientSecret extracts the secret handed to the external payment gateway.
func (ps PaymentSession) ClientSecret() (string, bool) {
	return ps.Data.StringField("client_secret")
}

// SessionForProvider returns the session opened with the given provider, or nil.
func (pc *PaymentCollection) SessionForProvider(providerID string) *PaymentSession {
	if pc == nil {
		return nil
	}
	for i := range pc.PaymentSessions {
		if pc.PaymentSessions[i].ProviderID == providerID {
			return &pc.PaymentSessions[i]
		}
	}
	return nil
}
