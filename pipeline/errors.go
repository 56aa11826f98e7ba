package pipeline

import "fmt"

// ErrorKind enumerates every way a product or link can end up tagged with an error.
type ErrorKind int

const (
	IDMissing ErrorKind = iota + 1
	LinksMissing
	ShopMissing
	ShopUnknown
	LinkMissing
	ExtractionFailed
)

// Message is the text stored on the catalog entity.
func (k ErrorKind) Message() string {
	switch k {
	case IDMissing:
		return "Product ID not found"
	case LinksMissing:
		return "Key 'links' not found"
	case ShopMissing:
		return "Key 'shop' not found"
	case ShopUnknown:
		return "Shop not found"
	case LinkMissing:
		return "Key 'link' not found"
	case ExtractionFailed:
		return "PRICE NOT FOUND!"
	default:
		return "unknown error"
	}
}

// String is a short label used in logs and metrics.
func (k ErrorKind) String() string {
	switch k {
	case IDMissing:
		return "id_missing"
	case LinksMissing:
		return "links_missing"
	case ShopMissing:
		return "shop_missing"
	case ShopUnknown:
		return "shop_unknown"
	case LinkMissing:
		return "link_missing"
	case ExtractionFailed:
		return "extraction_failed"
	default:
		return "unknown"
	}
}

// ItemError is the failure outcome for one product or link.
// Cause is only set for ExtractionFailed.
type ItemError struct {
	Kind  ErrorKind
	Cause error
}

func (e *ItemError) Error() string {
	if e.Cause == nil {
		return e.Kind.Message()
	}
	return fmt.Errorf("%s: %w", e.Kind.Message(), e.Cause).Error()
}

func (e *ItemError) Unwrap() error {
	return e.Cause
}
