package schema

// Destination tables. Column order matches the rows built by the loader.
var (
	CustomersTable = Table{
		Name:    "customers",
		Columns: []string{"customer_id", "first_name", "last_name", "email", "phone", "city", "registration_date"},
	}
	ProductsTable = Table{
		Name:    "products",
		Columns: []string{"product_id", "sku", "product_name", "category", "price", "stock_quantity"},
	}
	OrdersTable = Table{
		Name:    "orders",
		Columns: []string{"order_id", "transaction_id", "customer_id", "order_date", "total_amount", "status"},
	}
	OrderItemsTable = Table{
		Name:    "order_items",
		Columns: []string{"order_item_id", "order_id", "product_id", "quantity", "unit_price", "subtotal"},
	}
)

// DDL creates the destination and bookkeeping tables. Statements are
// idempotent and run in order.
var DDL = []string{
	`CREATE TABLE IF NOT EXISTS customers (
		customer_id       INT PRIMARY KEY,
		first_name        VARCHAR(50) NOT NULL,
		last_name         VARCHAR(50) NOT NULL,
		email             VARCHAR(100) UNIQUE NOT NULL,
		phone             VARCHAR(20),
		city              VARCHAR(50),
		registration_date DATE
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		product_id     INT PRIMARY KEY,
		sku            VARCHAR(20) UNIQUE NOT NULL,
		product_name   VARCHAR(100) NOT NULL,
		category       VARCHAR(50) NOT NULL,
		price          NUMERIC(10,2) NOT NULL,
		stock_quantity INT DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		order_id       INT PRIMARY KEY,
		transaction_id VARCHAR(20) UNIQUE NOT NULL,
		customer_id    INT NOT NULL REFERENCES customers(customer_id),
		order_date     DATE NOT NULL,
		total_amount   NUMERIC(10,2) NOT NULL,
		status         VARCHAR(20) DEFAULT 'Pending'
	)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		order_item_id INT PRIMARY KEY,
		order_id      INT NOT NULL REFERENCES orders(order_id),
		product_id    INT NOT NULL REFERENCES products(product_id),
		quantity      INT NOT NULL,
		unit_price    NUMERIC(10,2) NOT NULL,
		subtotal      NUMERIC(10,2) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS etl_runs (
		run_id      UUID PRIMARY KEY,
		state       VARCHAR(20) NOT NULL,
		error       TEXT,
		report      TEXT NOT NULL,
		started_at  TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS etl_quality_counters (
		run_id             UUID NOT NULL REFERENCES etl_runs(run_id) ON DELETE CASCADE,
		source             VARCHAR(20) NOT NULL,
		processed          INT NOT NULL,
		duplicates_removed INT NOT NULL,
		missing_handled    INT NOT NULL,
		loaded             INT NOT NULL,
		dropped_missing    INT NOT NULL,
		dropped_integrity  INT NOT NULL,
		dropped_malformed  INT NOT NULL,
		dropped_storage    INT NOT NULL,
		fields_malformed   INT NOT NULL DEFAULT 0,
		categories_unrecognized INT NOT NULL DEFAULT 0,
		PRIMARY KEY (run_id, source)
	)`,
	`CREATE TABLE IF NOT EXISTS etl_rejections (
		id          BIGSERIAL PRIMARY KEY,
		run_id      UUID NOT NULL REFERENCES etl_runs(run_id) ON DELETE CASCADE,
		source      VARCHAR(20) NOT NULL,
		line_number INT NOT NULL,
		natural_key TEXT,
		kind        VARCHAR(30),
		reason      VARCHAR(40) NOT NULL,
		detail      TEXT,
		raw_data    JSONB
	)`,
}

// ResetSQL empties the destination tables, children first.
const ResetSQL = `TRUNCATE TABLE order_items, orders, products, customers`
