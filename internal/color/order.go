package color

import (
	"fmt"
	"strings"
)

// Order names the physical wiring permutation of the strip's R/G/B channels.
// The white channel of RGBW strips is never permuted.
type Order uint8

const (
	OrderRGB Order = iota
	OrderRBG
	OrderGRB
	OrderGBR
	OrderBRG
	OrderBGR
)

// ParseOrder resolves a wiring order name such as "GRB". Matching is
// case-insensitive.
func ParseOrder(s string) (Order, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "RGB", "":
		return OrderRGB, nil
	case "RBG":
		return OrderRBG, nil
	case "GRB":
		return OrderGRB, nil
	case "GBR":
		return OrderGBR, nil
	case "BRG":
		return OrderBRG, nil
	case "BGR":
		return OrderBGR, nil
	default:
		return OrderRGB, fmt.Errorf("color: unknown channel order %q", s)
	}
}

func (o Order) String() string {
	switch o {
	case OrderRGB:
		return "RGB"
	case OrderRBG:
		return "RBG"
	case OrderGRB:
		return "GRB"
	case OrderGBR:
		return "GBR"
	case OrderBRG:
		return "BRG"
	case OrderBGR:
		return "BGR"
	default:
		return fmt.Sprintf("Order(%d)", uint8(o))
	}
}

// remap reorders logical R/G/B bytes into the strip's wire order.
func (o Order) remap(r, g, b byte) (byte, byte, byte) {
	switch o {
	case OrderRBG:
		return r, b, g
	case OrderGRB:
		return g, r, b
	case OrderGBR:
		return g, b, r
	case OrderBRG:
		return b, r, g
	case OrderBGR:
		return b, g, r
	default:
		return r, g, b
	}
}
