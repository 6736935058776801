package service

// ConnectRequest starts a marketplace connect flow
type ConnectRequest struct {
	// RedirectPath is where the admin console lands after authorization.
	// Paths off the allow-list fall back to the default.
	RedirectPath string `json:"redirect_path"`
}

// UpdateOrderStatusRequest moves a marketplace order to a new status
type UpdateOrderStatusRequest struct {
	Status string `json:"status" binding:"required"`
	// CurrentStatus, when known to the caller, is checked against the allowed
	// transitions before the platform is called
	CurrentStatus string `json:"current_status"`
	ShopID        string `json:"shop_id" binding:"required"`
}

// ListOrdersQuery selects orders of one shop
type ListOrdersQuery struct {
	ShopID   string `form:"shop_id" binding:"required"`
	Since    int64  `form:"since" binding:"omitempty,min=0"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// ProgressQuery asks for VIP progress of an arbitrary spend
type ProgressQuery struct {
	TotalSpent *int64 `form:"total_spent" binding:"required"`
}
