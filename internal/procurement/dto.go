package procurement

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-procure/internal/procurement/fulfillment"
)

// Amounts travel as decimal strings ("12.50") so no precision is lost.

type SourcingRequest struct {
	TransactionType   string `json:"transaction_type" validate:"max=64"`
	PurchaseType      string `json:"purchase_type" validate:"max=64"`
	ProjectID         int64  `json:"project_id" validate:"gte=0"`
	WarehouseLocation string `json:"warehouse_location" validate:"max=128"`
}

type PaymentTermsRequest struct {
	AdvancePercent         decimal.Decimal `json:"advance_percent"`
	AgainstDeliveryPercent decimal.Decimal `json:"against_delivery_percent"`
	AfterCompletionPercent decimal.Decimal `json:"after_completion_percent"`
	CreditPeriodDays       int             `json:"credit_period_days" validate:"gte=0"`
}

type OrderLineRequest struct {
	BrandName       string          `json:"brand_name" validate:"required,max=128"`
	ModelNo         string          `json:"model_no" validate:"required,max=128"`
	Description     string          `json:"description" validate:"max=512"`
	Unit            string          `json:"unit" validate:"max=20"`
	BaseUOM         string          `json:"base_uom" validate:"max=20"`
	Quantity        decimal.Decimal `json:"quantity"`
	Price           decimal.Decimal `json:"price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	TaxPercent      decimal.Decimal `json:"tax_percent"`
}

type OrderRequest struct {
	Number          string              `json:"number" validate:"max=64"`
	VendorID        int64               `json:"vendor_id" validate:"required,gt=0"`
	Sourcing        SourcingRequest     `json:"sourcing"`
	DeliveryAddress string              `json:"delivery_address" validate:"max=512"`
	OrderDate       *time.Time          `json:"order_date,omitempty"`
	DeliveryDate    *time.Time          `json:"delivery_date,omitempty"`
	PaymentTerms    PaymentTermsRequest `json:"payment_terms"`
	Remark          string              `json:"remark" validate:"max=1024"`
	Lines           []OrderLineRequest  `json:"lines" validate:"required,min=1,dive"`
}

type ReceiptLineRequest struct {
	BrandName       string          `json:"brand_name" validate:"required,max=128"`
	ModelNo         string          `json:"model_no" validate:"required,max=128"`
	Description     string          `json:"description" validate:"max=512"`
	Unit            string          `json:"unit" validate:"max=20"`
	Quantity        decimal.Decimal `json:"quantity"`
	Price           decimal.Decimal `json:"price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	TaxPercent      decimal.Decimal `json:"tax_percent"`
}

// ReceiptRequest leaves mode, vendor and line presence to the receipt rules
// so the client gets the same messages from dry runs and submissions.
type ReceiptRequest struct {
	Number          string               `json:"number" validate:"max=64"`
	Mode            string               `json:"mode"`
	PurchaseOrderID int64                `json:"purchase_order_id" validate:"gte=0"`
	VendorID        int64                `json:"vendor_id" validate:"gte=0"`
	Sourcing        SourcingRequest      `json:"sourcing"`
	Date            *time.Time           `json:"date,omitempty"`
	Remark          string               `json:"remark" validate:"max=1024"`
	Lines           []ReceiptLineRequest `json:"lines" validate:"dive"`
}

// StatusRequest is the body of an administrative status override.
type StatusRequest struct {
	Status string `json:"status" validate:"required,oneof=Pending Approved PartiallyReceived Received Cancelled"`
}

type OrderLineResponse struct {
	BrandName        string          `json:"brand_name"`
	ModelNo          string          `json:"model_no"`
	Description      string          `json:"description,omitempty"`
	Unit             string          `json:"unit,omitempty"`
	BaseUOM          string          `json:"base_uom,omitempty"`
	OrderedQuantity  decimal.Decimal `json:"ordered_quantity"`
	ReceivedQuantity decimal.Decimal `json:"received_quantity"`
	Remaining        decimal.Decimal `json:"remaining_quantity"`
	Price            decimal.Decimal `json:"price"`
	DiscountPercent  decimal.Decimal `json:"discount_percent"`
	TaxPercent       decimal.Decimal `json:"tax_percent"`
	NetValue         decimal.Decimal `json:"net_value"`
}

type TotalsResponse struct {
	Amount     decimal.Decimal `json:"total_amount"`
	Tax        decimal.Decimal `json:"total_tax"`
	GrandTotal decimal.Decimal `json:"grand_total"`
}

type OrderResponse struct {
	ID               int64               `json:"id"`
	Number           string              `json:"number"`
	VendorID         int64               `json:"vendor_id"`
	Status           fulfillment.Status  `json:"status"`
	StatusOverridden bool                `json:"status_overridden"`
	ApprovedAt       *time.Time          `json:"approved_at,omitempty"`
	Sourcing         SourcingRequest     `json:"sourcing"`
	DeliveryAddress  string              `json:"delivery_address,omitempty"`
	OrderDate        time.Time           `json:"order_date"`
	DeliveryDate     *time.Time          `json:"delivery_date,omitempty"`
	PaymentTerms     PaymentTermsRequest `json:"payment_terms"`
	RetentionPercent decimal.Decimal     `json:"retention_percent"`
	Remark           string              `json:"remark,omitempty"`
	Lines            []OrderLineResponse `json:"lines"`
	Totals           TotalsResponse      `json:"totals"`
	Version          int64               `json:"version"`
}

type ReceiptLineResponse struct {
	Source          string          `json:"source"`
	BrandName       string          `json:"brand_name"`
	ModelNo         string          `json:"model_no"`
	Description     string          `json:"description,omitempty"`
	Unit            string          `json:"unit,omitempty"`
	Quantity        decimal.Decimal `json:"quantity"`
	Price           decimal.Decimal `json:"price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	TaxPercent      decimal.Decimal `json:"tax_percent"`
	NetValue        decimal.Decimal `json:"net_value"`
}

type ReceiptResponse struct {
	ID              int64                 `json:"id,omitempty"`
	Number          string                `json:"number,omitempty"`
	Mode            fulfillment.Mode      `json:"mode"`
	PurchaseOrderID int64                 `json:"purchase_order_id,omitempty"`
	VendorID        int64                 `json:"vendor_id"`
	Sourcing        SourcingRequest       `json:"sourcing"`
	Date            time.Time             `json:"date"`
	Remark          string                `json:"remark,omitempty"`
	Lines           []ReceiptLineResponse `json:"lines"`
	Totals          TotalsResponse        `json:"totals"`
}

type RemainingResponse struct {
	Line            int             `json:"line"`
	BrandName       string          `json:"brand_name"`
	ModelNo         string          `json:"model_no"`
	Ordered         decimal.Decimal `json:"ordered_quantity"`
	AlreadyReceived decimal.Decimal `json:"already_received"`
	Remaining       decimal.Decimal `json:"remaining_quantity"`
}

type ListResponse[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func (r SourcingRequest) toDomain() fulfillment.Sourcing {
	return fulfillment.Sourcing{
		TransactionType:   r.TransactionType,
		PurchaseType:      r.PurchaseType,
		ProjectID:         r.ProjectID,
		WarehouseLocation: r.WarehouseLocation,
	}
}

func sourcingResponse(s fulfillment.Sourcing) SourcingRequest {
	return SourcingRequest{
		TransactionType:   s.TransactionType,
		PurchaseType:      s.PurchaseType,
		ProjectID:         s.ProjectID,
		WarehouseLocation: s.WarehouseLocation,
	}
}

func (r OrderRequest) toInput(actorID int64) OrderInput {
	in := OrderInput{
		Number:          r.Number,
		VendorID:        r.VendorID,
		Sourcing:        r.Sourcing.toDomain(),
		DeliveryAddress: r.DeliveryAddress,
		PaymentTerms: fulfillment.PaymentTerms{
			AdvancePercent:         r.PaymentTerms.AdvancePercent,
			AgainstDeliveryPercent: r.PaymentTerms.AgainstDeliveryPercent,
			AfterCompletionPercent: r.PaymentTerms.AfterCompletionPercent,
			CreditPeriodDays:       r.PaymentTerms.CreditPeriodDays,
		},
		Remark:  r.Remark,
		ActorID: actorID,
	}
	if r.OrderDate != nil {
		in.OrderDate = *r.OrderDate
	}
	if r.DeliveryDate != nil {
		in.DeliveryDate = *r.DeliveryDate
	}
	for _, l := range r.Lines {
		in.Lines = append(in.Lines, OrderLineInput{
			BrandName:       l.BrandName,
			ModelNo:         l.ModelNo,
			Description:     l.Description,
			Unit:            l.Unit,
			BaseUOM:         l.BaseUOM,
			Quantity:        l.Quantity,
			Price:           l.Price,
			DiscountPercent: l.DiscountPercent,
			TaxPercent:      l.TaxPercent,
		})
	}
	return in
}

func (r ReceiptRequest) toInput(idempotencyKey string, actorID int64) ReceiptInput {
	in := ReceiptInput{
		Number:          r.Number,
		Mode:            fulfillment.Mode(r.Mode),
		PurchaseOrderID: r.PurchaseOrderID,
		VendorID:        r.VendorID,
		Sourcing:        r.Sourcing.toDomain(),
		Remark:          r.Remark,
		IdempotencyKey:  idempotencyKey,
		ActorID:         actorID,
	}
	if r.Date != nil {
		in.Date = *r.Date
	}
	for _, l := range r.Lines {
		in.Lines = append(in.Lines, ReceiptLineInput{
			BrandName:       l.BrandName,
			ModelNo:         l.ModelNo,
			Description:     l.Description,
			Unit:            l.Unit,
			Quantity:        l.Quantity,
			Price:           l.Price,
			DiscountPercent: l.DiscountPercent,
			TaxPercent:      l.TaxPercent,
		})
	}
	return in
}

func totalsResponse(t fulfillment.Totals) TotalsResponse {
	return TotalsResponse{Amount: t.Amount, Tax: t.Tax, GrandTotal: t.GrandTotal}
}

func orderResponse(po PurchaseOrder) OrderResponse {
	resp := OrderResponse{
		ID:               po.ID,
		Number:           po.Number,
		VendorID:         po.VendorID,
		Status:           po.Status,
		StatusOverridden: po.StatusOverridden,
		ApprovedAt:       po.ApprovedAt,
		Sourcing:         sourcingResponse(po.Sourcing),
		DeliveryAddress:  po.DeliveryAddress,
		OrderDate:        po.OrderDate,
		PaymentTerms: PaymentTermsRequest{
			AdvancePercent:         po.PaymentTerms.AdvancePercent,
			AgainstDeliveryPercent: po.PaymentTerms.AgainstDeliveryPercent,
			AfterCompletionPercent: po.PaymentTerms.AfterCompletionPercent,
			CreditPeriodDays:       po.PaymentTerms.CreditPeriodDays,
		},
		RetentionPercent: po.PaymentTerms.Retention(),
		Remark:           po.Remark,
		Lines:            make([]OrderLineResponse, 0, len(po.Lines)),
		Totals:           totalsResponse(po.Totals),
		Version:          po.Version,
	}
	if !po.DeliveryDate.IsZero() {
		d := po.DeliveryDate
		resp.DeliveryDate = &d
	}
	for _, l := range po.Lines {
		net, _ := fulfillment.ComputeNetValue(l.OrderedQuantity, l.Price, l.DiscountPercent, l.TaxPercent)
		resp.Lines = append(resp.Lines, OrderLineResponse{
			BrandName:        l.BrandName,
			ModelNo:          l.ModelNo,
			Description:      l.Description,
			Unit:             l.Unit,
			BaseUOM:          l.BaseUOM,
			OrderedQuantity:  l.OrderedQuantity,
			ReceivedQuantity: l.ReceivedQuantity,
			Remaining:        fulfillment.ComputeRemaining(l).Remaining,
			Price:            l.Price,
			DiscountPercent:  l.DiscountPercent,
			TaxPercent:       l.TaxPercent,
			NetValue:         fulfillment.RoundMoney(net),
		})
	}
	return resp
}

func receiptResponse(id int64, number string, receipt fulfillment.Receipt) ReceiptResponse {
	resp := ReceiptResponse{
		ID:              id,
		Number:          number,
		Mode:            receipt.Mode,
		PurchaseOrderID: receipt.PurchaseOrderID,
		VendorID:        receipt.VendorID,
		Sourcing:        sourcingResponse(receipt.Sourcing),
		Date:            receipt.Date,
		Remark:          receipt.Remark,
		Lines:           make([]ReceiptLineResponse, 0, len(receipt.Lines)),
		Totals:          totalsResponse(receiptTotals(receipt)),
	}
	for _, l := range receipt.Lines {
		resp.Lines = append(resp.Lines, ReceiptLineResponse{
			Source:          l.Source.String(),
			BrandName:       l.BrandName,
			ModelNo:         l.ModelNo,
			Description:     l.Description,
			Unit:            l.Unit,
			Quantity:        l.Quantity,
			Price:           l.Price,
			DiscountPercent: l.DiscountPercent,
			TaxPercent:      l.TaxPercent,
			NetValue:        fulfillment.RoundMoney(l.NetValue()),
		})
	}
	return resp
}
