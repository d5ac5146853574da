package model

import "time"

// Entity is the constraint satisfied by every marketplace entity a list
// view can hold. WithActive returns a copy with only the status changed.
type Entity[T any] interface {
	EntityID() string
	Active() bool
	WithActive(active bool) T
}

// Entity kinds referenced by collection definitions.
const (
	KindCategory = "category"
	KindCompany  = "company"
	KindSalon    = "salon"
	KindWorker   = "worker"
	KindProduct  = "product"
)

// EntityKinds lists every kind a collection definition may declare.
var EntityKinds = []string{KindCategory, KindCompany, KindSalon, KindWorker, KindProduct}

// Category groups products and salon services.
type Category struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Image       string     `json:"image,omitempty"`
	IsActive    bool       `json:"isActive"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
}

func (c Category) EntityID() string { return c.ID }
func (c Category) Active() bool     { return c.IsActive }

func (c Category) WithActive(active bool) Category {
	c.IsActive = active
	return c
}

// Company is a business operating one or more salons.
type Company struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Email       string     `json:"email,omitempty"`
	Phone       string     `json:"phone,omitempty"`
	Address     string     `json:"address,omitempty"`
	IsSuspended bool       `json:"isSuspended"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
}

func (c Company) EntityID() string { return c.ID }
func (c Company) Active() bool     { return !c.IsSuspended }

func (c Company) WithActive(active bool) Company {
	c.IsSuspended = !active
	return c
}

// Salon is a location belonging to a company.
type Salon struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	CompanyID   string     `json:"companyId,omitempty"`
	City        string     `json:"city,omitempty"`
	Address     string     `json:"address,omitempty"`
	Phone       string     `json:"phone,omitempty"`
	IsSuspended bool       `json:"isSuspended"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
}

func (s Salon) EntityID() string { return s.ID }
func (s Salon) Active() bool     { return !s.IsSuspended }

func (s Salon) WithActive(active bool) Salon {
	s.IsSuspended = !active
	return s
}

// Worker is a user account attached to a salon.
type Worker struct {
	ID        string     `json:"id"`
	FirstName string     `json:"firstName"`
	LastName  string     `json:"lastName"`
	Email     string     `json:"email"`
	Phone     string     `json:"phone,omitempty"`
	Role      string     `json:"role,omitempty"`
	SalonID   string     `json:"salonId,omitempty"`
	IsActive  bool       `json:"isActive"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

func (w Worker) EntityID() string { return w.ID }
func (w Worker) Active() bool     { return w.IsActive }

func (w Worker) WithActive(active bool) Worker {
	w.IsActive = active
	return w
}

// Product is an item sold through the marketplace.
type Product struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	CategoryID  string     `json:"categoryId,omitempty"`
	Price       float64    `json:"price"`
	Stock       int        `json:"stock"`
	IsActive    bool       `json:"isActive"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
}

func (p Product) EntityID() string { return p.ID }
func (p Product) Active() bool     { return p.IsActive }

func (p Product) WithActive(active bool) Product {
	p.IsActive = active
	return p
}

// ImportReport is the outcome of a bulk user import. Inserted, Skipped and
// Errors are all meaningful even when the upload itself succeeded.
type ImportReport struct {
	ID        string    `json:"id"`
	SubjectID string    `json:"subject_id"`
	FileName  string    `json:"file_name"`
	Message   string    `json:"message"`
	Inserted  int       `json:"inserted"`
	Skipped   int       `json:"skipped"`
	Errors    []string  `json:"errors"`
	CreatedAt time.Time `json:"created_at"`
}

// Partial reports whether some rows were not imported.
func (r ImportReport) Partial() bool {
	return r.Skipped > 0 || len(r.Errors) > 0
}
