package transaction

import (
	"time"

	"github.com/shopspring/decimal"

	"mnetifi-service/internal/pkg/validate"
)

// STKPushRequest starts a payment for a plan on the payer's phone.
type STKPushRequest struct {
	Phone      string `json:"phone"`
	PlanID     int64  `json:"plan_id"`
	HotspotID  *int64 `json:"hotspot_id,omitempty"`
	MACAddress string `json:"mac_address,omitempty"`
	IPAddress  string `json:"ip_address,omitempty"`
}

func (r *STKPushRequest) Normalize() {
	if p, ok := validate.NormalizePhone(r.Phone); ok {
		r.Phone = p
	}
}

func (r STKPushRequest) Validate() error {
	fe := validate.FieldErrors{}
	fe.Check(validate.Phone(r.Phone), "phone", "enter a valid M-Pesa phone number")
	fe.Check(r.PlanID > 0, "plan_id", "choose a plan")
	return fe.Err()
}

type TransactionListFilters struct {
	Status     *Status               `form:"status"`
	Recon      *ReconciliationStatus `form:"reconciliation_status"`
	Phone      string                `form:"phone"`
	From       *time.Time            `form:"from" time_format:"2006-01-02"`
	To         *time.Time            `form:"to" time_format:"2006-01-02"`
	WifiUserID *int64                `form:"wifi_user_id"`
	Page       int                   `form:"page"`
	PageSize   int                   `form:"page_size"`
}

// CallbackEnvelope is the body Daraja posts to the STK callback URL.
type CallbackEnvelope struct {
	Body struct {
		STKCallback STKCallback `json:"stkCallback"`
	} `json:"Body"`
}

type STKCallback struct {
	MerchantRequestID string `json:"MerchantRequestID"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
	ResultCode        int    `json:"ResultCode"`
	ResultDesc        string `json:"ResultDesc"`
	CallbackMetadata  *struct {
		Item []CallbackItem `json:"Item"`
	} `json:"CallbackMetadata,omitempty"`
}

type CallbackItem struct {
	Name  string      `json:"Name"`
	Value interface{} `json:"Value,omitempty"`
}

// Payment is the parsed outcome of a callback.
type Payment struct {
	CheckoutRequestID string
	Success           bool
	ResultDesc        string
	Receipt           string
	Amount            *decimal.Decimal
	Phone             string
}

// Payment flattens the callback metadata.
func (c STKCallback) Payment() Payment {
	p := Payment{
		CheckoutRequestID: c.CheckoutRequestID,
		Success:           c.ResultCode == 0,
		ResultDesc:        c.ResultDesc,
	}
	if c.CallbackMetadata == nil {
		return p
	}
	for _, item := range c.CallbackMetadata.Item {
		switch item.Name {
		case "MpesaReceiptNumber":
			if s, ok := item.Value.(string); ok {
				p.Receipt = s
			}
		case "Amount":
			if f, ok := item.Value.(float64); ok {
				amt := decimal.NewFromFloat(f)
				p.Amount = &amt
			}
		case "PhoneNumber":
			if f, ok := item.Value.(float64); ok {
				p.Phone = decimal.NewFromFloat(f).String()
			}
		}
	}
	return p
}

// ReconcileTask is the payload of the delayed reconciliation job.
type ReconcileTask struct {
	TenantID      int64 `json:"tenant_id"`
	TransactionID int64 `json:"transaction_id"`
}
