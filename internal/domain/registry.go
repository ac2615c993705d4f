package domain

import "time"

// Customer, connection and meter rows are owned by the upstream registries.
// The billing core only reads them.

type UtilityType string

const (
	UtilityTypeElectricity UtilityType = "ELECTRICITY"
	UtilityTypeWater       UtilityType = "WATER"
	UtilityTypeGas         UtilityType = "GAS"
)

type CustomerClass string

const (
	CustomerClassResidential CustomerClass = "RESIDENTIAL"
	CustomerClassCommercial  CustomerClass = "COMMERCIAL"
	CustomerClassIndustrial  CustomerClass = "INDUSTRIAL"
	CustomerClassGovernment  CustomerClass = "GOVERNMENT"
)

type ConnectionStatus string

const (
	ConnectionStatusActive       ConnectionStatus = "ACTIVE"
	ConnectionStatusInactive     ConnectionStatus = "INACTIVE"
	ConnectionStatusSuspended    ConnectionStatus = "SUSPENDED"
	ConnectionStatusDisconnected ConnectionStatus = "DISCONNECTED"
)

type Customer struct {
	ID           int64         `json:"id"`
	Name         string        `json:"name"`
	CustomerType CustomerClass `json:"customer_type"`
}

type ServiceConnection struct {
	ID          int64            `json:"id"`
	CustomerID  int64            `json:"customer_id"`
	UtilityType UtilityType      `json:"utility_type"`
	Status      ConnectionStatus `json:"status"`
}

type Meter struct {
	ID           int64  `json:"id"`
	ConnectionID int64  `json:"connection_id"`
	SerialNumber string `json:"serial_number"`
}

// BillingContext is everything bill generation needs to know about a reading:
// the reading itself plus the connection and customer it belongs to.
type BillingContext struct {
	Reading             MeterReading
	ConnectionID        int64
	CustomerID          int64
	UtilityType         UtilityType
	CustomerClass       CustomerClass
	ConnectionStatus    ConnectionStatus
	PreviousReadingDate *time.Time
}
