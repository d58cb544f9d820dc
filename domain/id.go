package domain

import "github.com/google/uuid"

// Record IDs are assigned locally at creation time so records stay unique
// while the device is offline. The prefixes keep IDs recognizable in the
// spreadsheet backend.

func NewProductID() string  { return "PROD-" + uuid.NewString() }
func NewSaleID() string     { return "VEND-" + uuid.NewString() }
func NewMovementID() string { return "MOV-" + uuid.NewString() }
