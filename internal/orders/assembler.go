package orders

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/joao-fontenele/order-management/internal/assets"
	"github.com/joao-fontenele/order-management/internal/domain"
)

// ImageUpload is a new image payload attached to an item submission.
type ImageUpload struct {
	Filename string `json:"filename"`
	Data     []byte `json:"data"`
}

// ItemSubmission describes one line of a submitted order. ImageRef carries
// the reference of an already stored image; Image, when non-empty, replaces
// it.
type ItemSubmission struct {
	ID          int64           `json:"id"`
	ProductName string          `json:"product_name" validate:"required,max=100"`
	Quantity    int             `json:"quantity" validate:"min=1,max=2147483647"`
	Price       decimal.Decimal `json:"price" validate:"gte=0.01,lte=9999999999.99"`
	ImageRef    string          `json:"image_ref,omitempty" validate:"omitempty,max=200,assetref"`
	Image       *ImageUpload    `json:"image,omitempty" validate:"-"`
}

type Submission struct {
	OrderDate    time.Time        `json:"order_date"`
	CustomerName string           `json:"customer_name" validate:"required,max=100"`
	IsPaid       bool             `json:"is_paid"`
	Items        []ItemSubmission `json:"items" validate:"dive"`
}

type ImageResolver interface {
	Resolve(ctx context.Context, payload []byte, originalName string) (string, error)
}

// Assembler turns submissions into order aggregates. The whole submission is
// validated before any image is written.
type Assembler struct {
	resolver ImageResolver
	validate *validator.Validate
	workers  int
	now      func() time.Time
}

func NewAssembler(resolver ImageResolver) *Assembler {
	return &Assembler{
		resolver: resolver,
		validate: newValidator(),
		workers:  4,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Assemble validates sub, stores its new images and returns the order ready
// for the repository. Item IDs are copied as submitted; the order ID is left
// for the caller.
func (a *Assembler) Assemble(ctx context.Context, sub Submission) (*domain.Order, error) {
	sub = normalize(sub)

	if err := a.check(sub); err != nil {
		return nil, err
	}

	refs := make([]string, len(sub.Items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)

	for i, item := range sub.Items {
		refs[i] = item.ImageRef
		if item.Image == nil || len(item.Image.Data) == 0 {
			continue
		}

		g.Go(func() error {
			ref, err := a.resolver.Resolve(gctx, item.Image.Data, item.Image.Filename)
			if err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
			refs[i] = ref
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	orderDate := sub.OrderDate
	if orderDate.IsZero() {
		orderDate = a.now()
	}

	order := &domain.Order{
		OrderDate:    orderDate,
		CustomerName: sub.CustomerName,
		IsPaid:       sub.IsPaid,
		Items:        make([]domain.OrderItem, 0, len(sub.Items)),
	}

	for i, item := range sub.Items {
		order.Items = append(order.Items, domain.OrderItem{
			ID:          item.ID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			Price:       item.Price,
			ImageRef:    refs[i],
		})
	}

	return order, nil
}

func (a *Assembler) check(sub Submission) error {
	err := a.validate.Struct(sub)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return fmt.Errorf("validate submission: %w", err)
	}

	fields := make([]FieldError, 0, len(validationErrs))
	for _, fe := range validationErrs {
		fields = append(fields, FieldError{
			Field:   fieldPath(fe.Namespace()),
			Rule:    fe.Tag(),
			Message: message(fe),
		})
	}

	return &ValidationError{Fields: fields}
}

func normalize(sub Submission) Submission {
	sub.CustomerName = strings.TrimSpace(sub.CustomerName)

	items := make([]ItemSubmission, len(sub.Items))
	for i, item := range sub.Items {
		item.ProductName = strings.TrimSpace(item.ProductName)
		item.ImageRef = strings.TrimSpace(item.ImageRef)
		item.Price = item.Price.Round(2)
		items[i] = item
	}
	sub.Items = items

	return sub
}

func newValidator() *validator.Validate {
	v := validator.New()

	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	// Validation functions never fail to register with a non-empty tag.
	_ = v.RegisterValidation("assetref", func(fl validator.FieldLevel) bool {
		_, err := assets.NameFromRef(fl.Field().String())
		return err == nil
	})

	return v
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(namespace string) string {
	_, path, found := strings.Cut(namespace, ".")
	if !found {
		return namespace
	}
	return path
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "assetref":
		return "must reference a stored image"
	default:
		return "is invalid"
	}
}
