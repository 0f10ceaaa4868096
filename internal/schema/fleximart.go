package schema

// Source keys, in the order the pipeline processes them.
const (
	SourceCustomers = "customers"
	SourceProducts  = "products"
	SourceSales     = "sales"
)

// CustomerFieldSpecs defines the expected CSV columns for customers_raw.csv.
var CustomerFieldSpecs = []FieldSpec{
	{Name: "customer_id", Type: FieldText, Required: true},
	{Name: "first_name", Type: FieldText, Required: true},
	{Name: "last_name", Type: FieldText, Required: true},
	{Name: "email", Type: FieldEmail, Required: true},
	{Name: "phone", Type: FieldPhone, Required: true},
	{Name: "city", Type: FieldText, Required: true},
	{Name: "registration_date", Type: FieldDate, Required: true},
}

// ProductFieldSpecs defines the expected CSV columns for products_raw.csv.
var ProductFieldSpecs = []FieldSpec{
	{Name: "product_id", Type: FieldText, Required: true},
	{Name: "product_name", Type: FieldText, Required: true},
	{Name: "category", Type: FieldEnum, Required: true},
	{Name: "price", Type: FieldNumeric, Required: true},
	{Name: "stock_quantity", Type: FieldInteger, Required: true},
}

// SalesFieldSpecs defines the expected CSV columns for sales_raw.csv.
var SalesFieldSpecs = []FieldSpec{
	{Name: "transaction_id", Type: FieldText, Required: true},
	{Name: "customer_id", Type: FieldText, Required: true},
	{Name: "product_id", Type: FieldText, Required: true},
	{Name: "quantity", Type: FieldInteger, Required: true},
	{Name: "unit_price", Type: FieldNumeric, Required: true},
	{Name: "transaction_date", Type: FieldDate, Required: true},
	{Name: "status", Type: FieldText, Required: true},
}

// Sources lists the raw inputs in processing order.
var Sources = []Source{
	{Key: SourceCustomers, FileName: "customers_raw.csv", Label: "Customers", FieldSpecs: CustomerFieldSpecs},
	{Key: SourceProducts, FileName: "products_raw.csv", Label: "Products", FieldSpecs: ProductFieldSpecs},
	{Key: SourceSales, FileName: "sales_raw.csv", Label: "Sales", FieldSpecs: SalesFieldSpecs},
}

// SourceByKey returns the source definition for key.
func SourceByKey(key string) (Source, bool) {
	for _, s := range Sources {
		if s.Key == key {
			return s, true
		}
	}
	return Source{}, false
}
