package reference

import (
	"fmt"
	"strings"

	"github.com/cuongbtq/servicefee/internal/payment/domain"
)

// EMVCo merchant-presented QR tags used by Thai PromptPay
const (
	tagPayloadFormat    = "00"
	tagPointOfInit      = "01"
	tagMerchantAccount  = "29"
	tagCurrency         = "53"
	tagAmount           = "54"
	tagCountry          = "58"
	tagAdditionalData   = "62"
	tagCRC              = "63"
	subTagAID           = "00"
	subTagMobile        = "01"
	subTagTaxID         = "02"
	subTagEWallet       = "03"
	subTagReference     = "05"
	promptPayAID        = "A000000677010111"
	currencyTHB         = "764"
	pointOfInitDynamic  = "12"
	maxReferenceLabel   = 25
	payloadFormatEMVCo1 = "01"
)

// PayloadBuilder turns an amount and reference into the wire payload for a method
type PayloadBuilder interface {
	Build(method domain.Method, amount int64, reference string) (string, error)
}

// PromptPay builds PromptPay QR payloads for one merchant proxy id
type PromptPay struct {
	proxyTag   string
	proxyValue string
}

// NewPromptPay validates the merchant identifier. A malformed id is a
// configuration error and should stop the service from starting.
func NewPromptPay(merchantID string) (*PromptPay, error) {
	digits := strings.NewReplacer("-", "", " ", "").Replace(merchantID)
	for _, r := range digits {
		if r < '0' || r > '9' {
			return nil, fmt.Errorf("promptpay merchant id must contain digits only")
		}
	}

	switch {
	case len(digits) == 10 && digits[0] == '0':
		// mobile number, converted to the 0066 international form
		return &PromptPay{proxyTag: subTagMobile, proxyValue: "0066" + digits[1:]}, nil
	case len(digits) == 13:
		return &PromptPay{proxyTag: subTagTaxID, proxyValue: digits}, nil
	case len(digits) == 15:
		return &PromptPay{proxyTag: subTagEWallet, proxyValue: digits}, nil
	default:
		return nil, fmt.Errorf("promptpay merchant id must be a 10-digit mobile, 13-digit tax id or 15-digit e-wallet id, got %d digits", len(digits))
	}
}

// Payload renders the tag-length-value string for a fixed amount
func (p *PromptPay) Payload(amount int64, reference string) (string, error) {
	if amount <= 0 {
		return "", fmt.Errorf("amount must be positive, got %d", amount)
	}

	var b strings.Builder
	b.WriteString(tlv(tagPayloadFormat, payloadFormatEMVCo1))
	b.WriteString(tlv(tagPointOfInit, pointOfInitDynamic))
	b.WriteString(tlv(tagMerchantAccount, tlv(subTagAID, promptPayAID)+tlv(p.proxyTag, p.proxyValue)))
	b.WriteString(tlv(tagCurrency, currencyTHB))
	b.WriteString(tlv(tagAmount, fmt.Sprintf("%d.00", amount)))
	b.WriteString(tlv(tagCountry, "TH"))
	if label := referenceLabel(reference); label != "" {
		b.WriteString(tlv(tagAdditionalData, tlv(subTagReference, label)))
	}

	// the CRC covers everything up to and including its own tag and length
	b.WriteString(tagCRC + "04")
	b.WriteString(fmt.Sprintf("%04X", crc16CCITT([]byte(b.String()))))
	return b.String(), nil
}

// Payloads dispatches payload construction by payment method
type Payloads struct {
	promptPay *PromptPay
}

// NewPayloads creates a PayloadBuilder. promptPay may be nil when PromptPay is disabled.
func NewPayloads(promptPay *PromptPay) *Payloads {
	return &Payloads{promptPay: promptPay}
}

// Build returns the QR payload for promptpay and an empty payload for other methods
func (p *Payloads) Build(method domain.Method, amount int64, reference string) (string, error) {
	switch method {
	case domain.MethodPromptPay:
		if p.promptPay == nil {
			return "", domain.NewValidationError("payment_method", "promptpay is not enabled")
		}
		return p.promptPay.Payload(amount, reference)
	case domain.MethodBankTransfer, domain.MethodCreditCard:
		return "", nil
	default:
		return "", domain.NewValidationError("payment_method", fmt.Sprintf("unsupported payment method %q", method))
	}
}

func tlv(tag, value string) string {
	return fmt.Sprintf("%s%02d%s", tag, len(value), value)
}

// referenceLabel keeps the trailing characters, which hold the random part of a payment id
func referenceLabel(reference string) string {
	label := strings.ReplaceAll(reference, "-", "")
	if len(label) > maxReferenceLabel {
		label = label[len(label)-maxReferenceLabel:]
	}
	return label
}

// crc16CCITT is CRC-16/CCITT-FALSE (poly 0x1021, init 0xFFFF)
func crc16CCITT(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
