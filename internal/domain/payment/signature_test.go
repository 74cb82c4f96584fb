package payment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const testSecret = "whsec_test_secret"

func TestVerifySignature_RoundTrip(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	now := time.Now()
	header := SignPayload(payload, testSecret, now)

	assert.NoError(t, verifySignatureAt(payload, header, testSecret, now))
}

func TestVerifySignature_TamperedPayload(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Now()
	header := SignPayload(payload, testSecret, now)

	err := verifySignatureAt([]byte(`{"id":"evt_2"}`), header, testSecret, now)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestVerifySignature_WrongSecret(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Now()
	header := SignPayload(payload, "whsec_other", now)

	assert.ErrorIs(t, verifySignatureAt(payload, header, testSecret, now), ErrBadSignature)
}

func TestVerifySignature_StaleTimestamp(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	signed := time.Now().Add(-10 * time.Minute)
	header := SignPayload(payload, testSecret, signed)

	assert.ErrorIs(t, verifySignatureAt(payload, header, testSecret, time.Now()), ErrStaleTimestamp)
}

func TestVerifySignature_MissingOrMalformedHeader(t *testing.T) {
	payload := []byte(`{}`)

	assert.ErrorIs(t, VerifySignature(payload, "", testSecret), ErrMissingSignature)
	assert.ErrorIs(t, VerifySignature(payload, "v1=deadbeef", testSecret), ErrBadSignature)
	assert.ErrorIs(t, VerifySignature(payload, "t=abc,v1=deadbeef", testSecret), ErrBadSignature)
}
