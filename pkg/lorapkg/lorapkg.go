// Package lorapkg frames coordinator payloads as LoRaWAN unconfirmed data
// downlinks (AES encrypted FRMPayload plus MIC) and hex encodes them for the
// line-oriented radio link.
package lorapkg

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/brocaar/lorawan"

	"RoboFlock/internal/model"
)

// Errors returned by Decode.
var (
	ErrInvalidMIC    = errors.New("lorawan: invalid MIC")
	ErrForeignDevice = errors.New("lorawan: frame for another device")
	ErrNoPayload     = errors.New("lorawan: frame without data payload")
)

// LoRaWANContext holds the session of one end device.
type LoRaWANContext struct {
	DevAddr lorawan.DevAddr
	AppSKey lorawan.AES128Key
	NwkSKey lorawan.AES128Key
	FPort   uint8
	FCnt    uint32
}

// ContextFromConfig parses the hex session keys of the coordinator section.
func ContextFromConfig(c model.CoordinatorConfig) (LoRaWANContext, error) {
	var ctx LoRaWANContext
	if err := ctx.DevAddr.UnmarshalText([]byte(c.DevAddr)); err != nil {
		return ctx, fmt.Errorf("dev_addr: %w", err)
	}
	if err := ctx.AppSKey.UnmarshalText([]byte(c.AppSKey)); err != nil {
		return ctx, fmt.Errorf("app_skey: %w", err)
	}
	if err := ctx.NwkSKey.UnmarshalText([]byte(c.NwkSKey)); err != nil {
		return ctx, fmt.Errorf("nwk_skey: %w", err)
	}
	ctx.FPort = c.FPort
	if ctx.FPort == 0 {
		return ctx, errors.New("fport 0 is reserved for MAC commands")
	}
	return ctx, nil
}

// Encode wraps data in a downlink frame and returns it hex encoded.
// The caller owns the frame counter.
func Encode(ctx LoRaWANContext, data []byte) (string, error) {
	fPort := ctx.FPort
	phy := lorawan.PHYPayload{
		MHDR: lorawan.MHDR{
			MType: lorawan.UnconfirmedDataDown,
			Major: lorawan.LoRaWANR1,
		},
		MACPayload: &lorawan.MACPayload{
			FHDR: lorawan.FHDR{
				DevAddr: ctx.DevAddr,
				FCnt:    ctx.FCnt,
			},
			FPort:      &fPort,
			FRMPayload: []lorawan.Payload{&lorawan.DataPayload{Bytes: data}},
		},
	}
	if err := phy.EncryptFRMPayload(ctx.AppSKey); err != nil {
		return "", fmt.Errorf("encrypt: %w", err)
	}
	if err := phy.SetDownlinkDataMIC(lorawan.LoRaWAN1_0, 0, ctx.NwkSKey); err != nil {
		return "", fmt.Errorf("mic: %w", err)
	}
	b, err := phy.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Decode verifies and decrypts a hex encoded downlink addressed to ctx.DevAddr.
func Decode(ctx LoRaWANContext, frame string) ([]byte, error) {
	b, err := hex.DecodeString(frame)
	if err != nil {
		return nil, fmt.Errorf("lorawan: frame hex: %w", err)
	}
	var phy lorawan.PHYPayload
	if err := phy.UnmarshalBinary(b); err != nil {
		return nil, fmt.Errorf("lorawan: unmarshal: %w", err)
	}
	mac, ok := phy.MACPayload.(*lorawan.MACPayload)
	if !ok {
		return nil, ErrNoPayload
	}
	if mac.FHDR.DevAddr != ctx.DevAddr {
		return nil, ErrForeignDevice
	}
	valid, err := phy.ValidateDownlinkDataMIC(lorawan.LoRaWAN1_0, 0, ctx.NwkSKey)
	if err != nil {
		return nil, fmt.Errorf("lorawan: mic: %w", err)
	}
	if !valid {
		return nil, ErrInvalidMIC
	}
	if err := phy.DecryptFRMPayload(ctx.AppSKey); err != nil {
		return nil, fmt.Errorf("lorawan: decrypt: %w", err)
	}
	if len(mac.FRMPayload) != 1 {
		return nil, ErrNoPayload
	}
	dp, ok := mac.FRMPayload[0].(*lorawan.DataPayload)
	if !ok {
		return nil, ErrNoPayload
	}
	return dp.Bytes, nil
}
