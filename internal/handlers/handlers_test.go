package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/pufftown/delivery-backend/internal/geocode"
	"github.com/pufftown/delivery-backend/internal/hash"
	"github.com/pufftown/delivery-backend/internal/models"
	"github.com/pufftown/delivery-backend/internal/testutil"
	"github.com/pufftown/delivery-backend/internal/windows"
)

type fakeGeocoder struct {
	loc *geocode.Location
	err error
}

func (f *fakeGeocoder) Geocode(context.Context, string) (*geocode.Location, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.loc, nil
}

type fakeMailer struct {
	to      []string
	subject []string
	html    []string
}

func (f *fakeMailer) Send(_ context.Context, to, subject, html string) error {
	f.to = append(f.to, to)
	f.subject = append(f.subject, subject)
	f.html = append(f.html, html)
	return nil
}

func jsonRequest(t *testing.T, method, path string, payload any) (*httptest.ResponseRecorder, echo.Context) {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}
	e := echo.New()
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return rec, e.NewContext(req, rec)
}

func asCustomer(c echo.Context, id uint) {
	c.Set("customer_id", id)
}

func TestSignupGeocodesAndPends(t *testing.T) {
	db := testutil.OpenDB(t)
	h := &AuthHandler{
		DB:       db,
		Geocoder: &fakeGeocoder{loc: &geocode.Location{Lat: 40.1, Lng: -75.2, City: "Media", State: "PA", Zip: "19063"}},
		Mailer:   &fakeMailer{},
	}

	rec, c := jsonRequest(t, http.MethodPost, "/register", map[string]string{
		"email":      "New.Customer@Example.com",
		"password":   "hunter2hunter2",
		"first_name": "Dana",
		"last_name":  "Cole",
		"address":    "100 State St, Media PA",
	})
	require.NoError(t, h.Signup(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	var cust models.DeliveryCustomer
	require.NoError(t, db.Where("email = ?", "new.customer@example.com").First(&cust).Error)
	require.Equal(t, models.ApprovalPending, cust.ApprovalStatus)
	require.InDelta(t, 40.1, cust.Latitude, 0.0001)
	require.Equal(t, "Media", cust.City)
	require.NotEqual(t, "hunter2hunter2", cust.PasswordHash)

	// duplicate email
	rec2, c2 := jsonRequest(t, http.MethodPost, "/register", map[string]string{
		"email":      "new.customer@example.com",
		"password":   "hunter2hunter2",
		"first_name": "Dana",
		"address":    "100 State St",
	})
	require.NoError(t, h.Signup(c2))
	require.Equal(t, http.StatusConflict, rec2.Code)
}

func TestLoginRejectedAccount(t *testing.T) {
	db := testutil.OpenDB(t)
	hashed, err := hash.HashPassword("correct horse")
	require.NoError(t, err)
	require.NoError(t, db.Create(&models.DeliveryCustomer{
		Email:          "no@example.com",
		FirstName:      "No",
		LastName:       "Body",
		Address:        "1 Elm St",
		PasswordHash:   hashed,
		ApprovalStatus: models.ApprovalRejected,
	}).Error)

	h := &AuthHandler{DB: db, JWTSecret: []byte("secret")}

	rec, c := jsonRequest(t, http.MethodPost, "/login", map[string]string{
		"email": "no@example.com", "password": "wrong",
	})
	require.NoError(t, h.Login(c))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec2, c2 := jsonRequest(t, http.MethodPost, "/login", map[string]string{
		"email": "no@example.com", "password": "correct horse",
	})
	require.NoError(t, h.Login(c2))
	require.Equal(t, http.StatusForbidden, rec2.Code)
}

func TestCartStockBound(t *testing.T) {
	db := testutil.OpenDB(t)
	h := &CartHandler{DB: db}

	cust := models.DeliveryCustomer{Email: "c@example.com", FirstName: "C", LastName: "D", Address: "2 Oak St", ApprovalStatus: models.ApprovalApproved}
	require.NoError(t, db.Create(&cust).Error)
	p := models.DeliveryProduct{Name: "Mint Pods", Price: "17.99", StockQuantity: 3, Enabled: true}
	require.NoError(t, db.Create(&p).Error)

	rec, c := jsonRequest(t, http.MethodPost, "/me/cart", map[string]any{"product_id": p.ID, "quantity": 2})
	asCustomer(c, cust.ID)
	require.NoError(t, h.AddToCart(c))
	require.Equal(t, http.StatusOK, rec.Code)

	// adding 2 more would exceed stock of 3
	rec2, c2 := jsonRequest(t, http.MethodPost, "/me/cart", map[string]any{"product_id": p.ID, "quantity": 2})
	asCustomer(c2, cust.ID)
	require.NoError(t, h.AddToCart(c2))
	require.Equal(t, http.StatusBadRequest, rec2.Code)
	require.Contains(t, rec2.Body.String(), "Only 3 available in stock")

	var rem models.CartReminder
	require.NoError(t, db.Where("customer_id = ?", cust.ID).First(&rem).Error)
}

func TestClearCartDropsReminder(t *testing.T) {
	db := testutil.OpenDB(t)
	h := &CartHandler{DB: db}

	cust := models.DeliveryCustomer{Email: "c2@example.com", FirstName: "C", LastName: "D", Address: "3 Oak St", ApprovalStatus: models.ApprovalApproved}
	require.NoError(t, db.Create(&cust).Error)
	p := models.DeliveryProduct{Name: "Grape Pods", Price: "12.99", StockQuantity: 5, Enabled: true}
	require.NoError(t, db.Create(&p).Error)

	_, c := jsonRequest(t, http.MethodPost, "/me/cart", map[string]any{"product_id": p.ID, "quantity": 1})
	asCustomer(c, cust.ID)
	require.NoError(t, h.AddToCart(c))

	rec, c2 := jsonRequest(t, http.MethodDelete, "/me/cart", nil)
	asCustomer(c2, cust.ID)
	require.NoError(t, h.ClearCart(c2))
	require.Equal(t, http.StatusNoContent, rec.Code)

	var count int64
	require.NoError(t, db.Model(&models.CartItem{}).Where("customer_id = ?", cust.ID).Count(&count).Error)
	require.Zero(t, count)
	require.NoError(t, db.Model(&models.CartReminder{}).Where("customer_id = ?", cust.ID).Count(&count).Error)
	require.Zero(t, count)
}

func TestApprovalEmailsSetupLink(t *testing.T) {
	db := testutil.OpenDB(t)
	mail := &fakeMailer{}
	admin := &AdminHandler{DB: db, Mailer: mail, StoreName: "Puff Town", StoreWebURL: "https://pufftown.example"}

	// admin-created account: no password yet
	cust := models.DeliveryCustomer{Email: "walkin@example.com", FirstName: "Pat", LastName: "Kim", Address: "8 Pine St"}
	require.NoError(t, db.Create(&cust).Error)

	rec, c := jsonRequest(t, http.MethodPatch, "/admin/customers/1/approval", map[string]string{"status": "approved"})
	c.SetParamNames("id")
	c.SetParamValues("1")
	require.NoError(t, admin.SetCustomerApproval(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.DeliveryCustomer
	require.NoError(t, db.First(&got, cust.ID).Error)
	require.Equal(t, models.ApprovalApproved, got.ApprovalStatus)
	require.NotEmpty(t, got.SetupToken)
	require.NotNil(t, got.SetupTokenExpires)

	require.Len(t, mail.to, 1)
	require.Equal(t, "walkin@example.com", mail.to[0])
	require.Contains(t, mail.html[0], got.SetupToken)

	// the mailed token finishes account setup
	auth := &AuthHandler{DB: db}
	rec2, c2 := jsonRequest(t, http.MethodPost, "/password/setup", map[string]string{
		"token": got.SetupToken, "password": "fresh-password",
	})
	require.NoError(t, auth.SetupPassword(c2))
	require.Equal(t, http.StatusOK, rec2.Code)

	require.NoError(t, db.First(&got, cust.ID).Error)
	require.Empty(t, got.SetupToken)
	require.True(t, hash.CheckPassword(got.PasswordHash, "fresh-password"))
}

func TestResetTokenExpiry(t *testing.T) {
	db := testutil.OpenDB(t)
	expired := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, db.Create(&models.DeliveryCustomer{
		Email:             "old@example.com",
		FirstName:         "Old",
		LastName:          "Token",
		Address:           "4 Ash St",
		ResetToken:        "stale-token",
		ResetTokenExpires: &expired,
	}).Error)

	h := &AuthHandler{DB: db}
	rec, c := jsonRequest(t, http.MethodPost, "/password/reset", map[string]string{
		"token": "stale-token", "password": "new-password-1",
	})
	require.NoError(t, h.ResetPassword(c))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateProductCurationOnly(t *testing.T) {
	db := testutil.OpenDB(t)
	admin := &AdminHandler{DB: db}

	p := models.DeliveryProduct{Name: "Berry Pods", Price: "21.99", StockQuantity: 7, Enabled: false}
	require.NoError(t, db.Create(&p).Error)

	enabled := true
	order := 5
	rec, c := jsonRequest(t, http.MethodPatch, "/admin/products/1", map[string]any{
		"enabled":       enabled,
		"badge":         "Staff Pick",
		"display_order": order,
		"sale_price":    "18.99",
		"price":         "1.00", // not an editable field
	})
	c.SetParamNames("id")
	c.SetParamValues("1")
	require.NoError(t, admin.UpdateProduct(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.DeliveryProduct
	require.NoError(t, db.First(&got, p.ID).Error)
	require.True(t, got.Enabled)
	require.Equal(t, "Staff Pick", got.Badge)
	require.Equal(t, 5, got.DisplayOrder)
	require.Equal(t, "18.99", got.SalePrice)
	require.Equal(t, "21.99", got.Price)
}

func TestEnabledProductsOnly(t *testing.T) {
	db := testutil.OpenDB(t)
	h := &ProductHandler{DB: db}

	require.NoError(t, db.Create(&models.DeliveryProduct{Name: "Visible", Price: "9.99", Enabled: true}).Error)
	require.NoError(t, db.Create(&models.DeliveryProduct{Name: "Hidden", Price: "9.99", Enabled: false}).Error)

	rec, c := jsonRequest(t, http.MethodGet, "/products", nil)
	require.NoError(t, h.GetProducts(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []models.DeliveryProduct `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	require.Equal(t, "Visible", resp.Data[0].Name)
}

func TestGenerateWindowsEndpoint(t *testing.T) {
	db := testutil.OpenDB(t)
	admin := &AdminHandler{DB: db, Windows: &windows.Service{DB: db}, WindowDaysAhead: 14}

	tomorrow := time.Now().AddDate(0, 0, 1)
	require.NoError(t, db.Create(&models.WeeklyDeliveryTemplate{
		DayOfWeek: int(tomorrow.Weekday()),
		StartTime: "10:00",
		EndTime:   "12:00",
		Capacity:  4,
		Enabled:   true,
	}).Error)

	rec, c := jsonRequest(t, http.MethodPost, "/admin/delivery-windows/generate", nil)
	require.NoError(t, admin.GenerateWindows(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var count int64
	require.NoError(t, db.Model(&models.DeliveryWindow{}).Count(&count).Error)
	require.NotZero(t, count)
}
