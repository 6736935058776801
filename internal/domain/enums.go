package domain

import "strings"

// Platform identifies a marketplace integration
type Platform string

const (
	PlatformShopee   Platform = "shopee"
	PlatformTikTok   Platform = "tiktok"
	PlatformFacebook Platform = "facebook"
)

// Platforms lists every supported marketplace in display order
var Platforms = []Platform{PlatformShopee, PlatformTikTok, PlatformFacebook}

// IsValid checks if the platform is supported
func (p Platform) IsValid() bool {
	switch p {
	case PlatformShopee, PlatformTikTok, PlatformFacebook:
		return true
	default:
		return false
	}
}

// ParsePlatform normalizes a route or config value ("TikTok", " shopee ") to a Platform
func ParsePlatform(s string) (Platform, bool) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case "tiktokshop", "tiktok-shop":
		p = PlatformTikTok
	case "fb", "meta":
		p = PlatformFacebook
	}
	return p, p.IsValid()
}

// ConnectionStatus is the lifecycle state of a business account
type ConnectionStatus string

const (
	// Never completed an authorization. Only used for accounts that have no row yet.
	ConnectionStatusUnconnected  ConnectionStatus = "unconnected"
	ConnectionStatusConnected    ConnectionStatus = "connected"
	ConnectionStatusDisconnected ConnectionStatus = "disconnected"
)

// OrderStatus is a marketplace order status normalized across platforms
type OrderStatus string

const (
	// UNPAID - buyer has not paid yet
	OrderStatusUnpaid OrderStatus = "UNPAID"
	// READY_TO_SHIP - paid, seller must arrange shipment
	OrderStatusReadyToShip OrderStatus = "READY_TO_SHIP"
	// PROCESSED - shipment arranged, waiting for pickup
	OrderStatusProcessed OrderStatus = "PROCESSED"
	// SHIPPED - handed to the carrier
	OrderStatusShipped OrderStatus = "SHIPPED"
	// COMPLETED - delivered and settled
	OrderStatusCompleted OrderStatus = "COMPLETED"
	// CANCELLED - cancelled by buyer, seller or platform
	OrderStatusCancelled OrderStatus = "CANCELLED"
	// UNKNOWN - platform status we do not map
	OrderStatusUnknown OrderStatus = "UNKNOWN"

	// Aliases accepted from API clients
	OrderStatusCanceled OrderStatus = "CANCELED"
	OrderStatusToShip   OrderStatus = "TO_SHIP"
)

// IsValid checks if the order status is valid
func (s OrderStatus) IsValid() bool {
	switch s.Normalize() {
	case OrderStatusUnpaid,
		OrderStatusReadyToShip,
		OrderStatusProcessed,
		OrderStatusShipped,
		OrderStatusCompleted,
		OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo checks if a seller may move an order to newStatus
func (s OrderStatus) CanTransitionTo(newStatus OrderStatus) bool {
	from := s.Normalize()
	to := newStatus.Normalize()

	switch from {
	case OrderStatusUnpaid:
		return to == OrderStatusCancelled
	case OrderStatusReadyToShip:
		return to == OrderStatusProcessed ||
			to == OrderStatusCancelled
	case OrderStatusProcessed:
		return to == OrderStatusShipped
	case OrderStatusShipped:
		return to == OrderStatusCompleted
	case OrderStatusCompleted, OrderStatusCancelled:
		return false // Terminal states
	default:
		return false
	}
}

// Normalize maps aliases and casing to canonical statuses
func (s OrderStatus) Normalize() OrderStatus {
	n := OrderStatus(strings.ToUpper(strings.TrimSpace(string(s))))
	switch n {
	case OrderStatusCanceled:
		return OrderStatusCancelled
	case OrderStatusToShip:
		return OrderStatusReadyToShip
	default:
		return n
	}
}
