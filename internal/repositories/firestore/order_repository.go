package firestore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	firestorev1 "cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/orchidmarket/api/internal/domain"
	platform "github.com/orchidmarket/api/internal/platform/firestore"
	"github.com/orchidmarket/api/internal/repositories"
)

const (
	ordersCollection       = "orders"
	orderNumbersCollection = "orderNumbers"

	// defaultSearchScanLimit bounds the in-memory search scan so a hostile
	// search term cannot stream the whole collection.
	defaultSearchScanLimit = 1000
)

type addressDocument struct {
	Name       string `firestore:"name,omitempty"`
	Line1      string `firestore:"line1,omitempty"`
	Line2      string `firestore:"line2,omitempty"`
	City       string `firestore:"city,omitempty"`
	State      string `firestore:"state,omitempty"`
	PostalCode string `firestore:"postalCode,omitempty"`
	Country    string `firestore:"country,omitempty"`
	Phone      string `firestore:"phone,omitempty"`
}

type orderItemDocument struct {
	ProductRef string `firestore:"productRef"`
	VariantRef string `firestore:"variantRef,omitempty"`
	Name       string `firestore:"name"`
	ImageURL   string `firestore:"imageUrl,omitempty"`
	Quantity   int    `firestore:"quantity"`
	UnitPrice  int64  `firestore:"unitPrice"`
}

type orderDocument struct {
	OrderNumber     string              `firestore:"orderNumber"`
	UserID          string              `firestore:"userId"`
	Items           []orderItemDocument `firestore:"items"`
	Subtotal        int64               `firestore:"subtotal"`
	TaxAmount       int64               `firestore:"taxAmount"`
	ShippingCost    int64               `firestore:"shippingCost"`
	TotalAmount     int64               `firestore:"totalAmount"`
	Currency        string              `firestore:"currency"`
	Status          string              `firestore:"status"`
	PaymentStatus   string              `firestore:"paymentStatus"`
	PaymentMethod   string              `firestore:"paymentMethod,omitempty"`
	ShippingAddress addressDocument     `firestore:"shippingAddress"`
	BillingAddress  addressDocument     `firestore:"billingAddress"`
	CreatedAt       time.Time           `firestore:"createdAt"`
	UpdatedAt       time.Time           `firestore:"updatedAt"`
	PaidAt          *time.Time          `firestore:"paidAt,omitempty"`
	CancelledAt     *time.Time          `firestore:"cancelledAt,omitempty"`
}

type orderNumberDocument struct {
	OrderID    string    `firestore:"orderId"`
	ReservedAt time.Time `firestore:"reservedAt"`
}

type orderRepository struct {
	provider  *platform.Provider
	orders    *platform.BaseRepository[orderDocument]
	scanLimit int
}

var _ repositories.OrderRepository = (*orderRepository)(nil)

// NewOrderRepository constructs the Firestore-backed order repository. A
// non-positive searchScanLimit falls back to the default scan bound.
func NewOrderRepository(provider *platform.Provider, searchScanLimit int) (repositories.OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository: firestore provider is required")
	}
	if searchScanLimit <= 0 {
		searchScanLimit = defaultSearchScanLimit
	}
	return &orderRepository{
		provider:  provider,
		orders:    platform.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil),
		scanLimit: searchScanLimit,
	}, nil
}

// Insert writes the order and reserves its number in one transaction so two
// orders can never share a number.
func (r *orderRepository) Insert(ctx context.Context, order domain.Order) error {
	if strings.TrimSpace(order.ID) == "" {
		return platform.WrapError("orders.insert", status.Error(codes.InvalidArgument, "order id is required"))
	}
	if strings.TrimSpace(order.OrderNumber) == "" {
		return platform.WrapError("orders.insert", status.Error(codes.InvalidArgument, "order number is required"))
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}

	orderRef := client.Collection(ordersCollection).Doc(order.ID)
	numberRef := client.Collection(orderNumbersCollection).Doc(order.OrderNumber)
	doc := toOrderDocument(order)
	reservation := orderNumberDocument{OrderID: order.ID, ReservedAt: order.CreatedAt}

	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestorev1.Transaction) error {
		if err := tx.Create(numberRef, reservation); err != nil {
			return err
		}
		return tx.Create(orderRef, doc)
	})
}

func (r *orderRepository) Update(ctx context.Context, order domain.Order) error {
	_, err := r.orders.Set(ctx, order.ID, toOrderDocument(order))
	return err
}

func (r *orderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return fromOrderDocument(doc.ID, doc.Data), nil
}

func (r *orderRepository) FindByNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return domain.Order{}, platform.WrapError("orders.findByNumber", status.Error(codes.NotFound, "order number is required"))
	}

	docs, err := r.orders.Query(ctx, func(q firestorev1.Query) firestorev1.Query {
		return q.Where("orderNumber", "==", orderNumber).Limit(1)
	})
	if err != nil {
		return domain.Order{}, err
	}
	if len(docs) == 0 {
		return domain.Order{}, platform.WrapError("orders.findByNumber", status.Error(codes.NotFound, "order not found"))
	}
	return fromOrderDocument(docs[0].ID, docs[0].Data), nil
}

func (r *orderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.Page[domain.Order], error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 {
		limit = 10
	}

	scoped := func(q firestorev1.Query) firestorev1.Query {
		if filter.UserID != "" {
			q = q.Where("userId", "==", filter.UserID)
		}
		if len(filter.Statuses) > 0 {
			statuses := make([]string, 0, len(filter.Statuses))
			for _, s := range filter.Statuses {
				statuses = append(statuses, string(s))
			}
			q = q.Where("status", "in", statuses)
		}
		return q
	}

	if strings.TrimSpace(filter.Search) == "" {
		return r.listWindow(ctx, scoped, page, limit)
	}
	return r.searchWindow(ctx, scoped, filter, page, limit)
}

// listWindow pages server-side with an aggregation count for the total.
func (r *orderRepository) listWindow(ctx context.Context, scoped platform.QueryBuilder, page, limit int) (domain.Page[domain.Order], error) {
	total, err := r.orders.Count(ctx, scoped)
	if err != nil {
		return domain.Page[domain.Order]{}, err
	}

	docs, err := r.orders.Query(ctx, func(q firestorev1.Query) firestorev1.Query {
		return scoped(q).
			OrderBy("createdAt", firestorev1.Desc).
			Offset((page - 1) * limit).
			Limit(limit)
	})
	if err != nil {
		return domain.Page[domain.Order]{}, err
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, fromOrderDocument(doc.ID, doc.Data))
	}

	return domain.Page[domain.Order]{Items: orders, Page: page, Limit: limit, Total: int(total)}, nil
}

// searchWindow pulls the scoped result set (bounded by the configured scan
// limit) and filters it in memory; Firestore has no substring operator. Totals
// are exact only while the filtered set fits inside the scan window.
func (r *orderRepository) searchWindow(ctx context.Context, scoped platform.QueryBuilder, filter repositories.OrderListFilter, page, limit int) (domain.Page[domain.Order], error) {
	docs, err := r.orders.Query(ctx, func(q firestorev1.Query) firestorev1.Query {
		return scoped(q).
			OrderBy("createdAt", firestorev1.Desc).
			Limit(r.scanLimit)
	})
	if err != nil {
		return domain.Page[domain.Order]{}, err
	}

	term := strings.ToLower(strings.TrimSpace(filter.Search))
	ownerIDs := make(map[string]struct{}, len(filter.SearchOwnerIDs))
	for _, id := range filter.SearchOwnerIDs {
		ownerIDs[id] = struct{}{}
	}

	matched := make([]domain.Order, 0, limit)
	for _, doc := range docs {
		order := fromOrderDocument(doc.ID, doc.Data)
		if orderMatchesSearch(order, term, ownerIDs) {
			matched = append(matched, order)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return domain.Page[domain.Order]{Items: matched[start:end], Page: page, Limit: limit, Total: total}, nil
}

func orderMatchesSearch(order domain.Order, term string, ownerIDs map[string]struct{}) bool {
	if term == "" {
		return true
	}
	if strings.Contains(strings.ToLower(order.OrderNumber), term) {
		return true
	}
	for _, item := range order.Items {
		if strings.Contains(strings.ToLower(item.Name), term) {
			return true
		}
	}
	if _, ok := ownerIDs[order.UserID]; ok {
		return true
	}
	return false
}

func toOrderDocument(order domain.Order) orderDocument {
	items := make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemDocument{
			ProductRef: item.ProductRef,
			VariantRef: item.VariantRef,
			Name:       item.Name,
			ImageURL:   item.ImageURL,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
		})
	}
	return orderDocument{
		OrderNumber:     order.OrderNumber,
		UserID:          order.UserID,
		Items:           items,
		Subtotal:        order.Subtotal,
		TaxAmount:       order.TaxAmount,
		ShippingCost:    order.ShippingCost,
		TotalAmount:     order.TotalAmount,
		Currency:        order.Currency,
		Status:          string(order.Status),
		PaymentStatus:   string(order.PaymentStatus),
		PaymentMethod:   order.PaymentMethod,
		ShippingAddress: toAddressDocument(order.ShippingAddress),
		BillingAddress:  toAddressDocument(order.BillingAddress),
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
		PaidAt:          order.PaidAt,
		CancelledAt:     order.CancelledAt,
	}
}

func fromOrderDocument(id string, doc orderDocument) domain.Order {
	items := make([]domain.OrderItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		items = append(items, domain.OrderItem{
			ProductRef: item.ProductRef,
			VariantRef: item.VariantRef,
			Name:       item.Name,
			ImageURL:   item.ImageURL,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
		})
	}
	return domain.Order{
		ID:              id,
		OrderNumber:     doc.OrderNumber,
		UserID:          doc.UserID,
		Items:           items,
		Subtotal:        doc.Subtotal,
		TaxAmount:       doc.TaxAmount,
		ShippingCost:    doc.ShippingCost,
		TotalAmount:     doc.TotalAmount,
		Currency:        doc.Currency,
		Status:          domain.OrderStatus(doc.Status),
		PaymentStatus:   domain.PaymentStatus(doc.PaymentStatus),
		PaymentMethod:   doc.PaymentMethod,
		ShippingAddress: fromAddressDocument(doc.ShippingAddress),
		BillingAddress:  fromAddressDocument(doc.BillingAddress),
		CreatedAt:       doc.CreatedAt,
		UpdatedAt:       doc.UpdatedAt,
		PaidAt:          doc.PaidAt,
		CancelledAt:     doc.CancelledAt,
	}
}

func toAddressDocument(addr domain.Address) addressDocument {
	return addressDocument{
		Name:       addr.Name,
		Line1:      addr.Line1,
		Line2:      addr.Line2,
		City:       addr.City,
		State:      addr.State,
		PostalCode: addr.PostalCode,
		Country:    addr.Country,
		Phone:      addr.Phone,
	}
}

func fromAddressDocument(doc addressDocument) domain.Address {
	return domain.Address{
		Name:       doc.Name,
		Line1:      doc.Line1,
		Line2:      doc.Line2,
		City:       doc.City,
		State:      doc.State,
		PostalCode: doc.PostalCode,
		Country:    doc.Country,
		Phone:      doc.Phone,
	}
}
