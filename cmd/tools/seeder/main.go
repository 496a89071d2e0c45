package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping DB: %v", err)
	}

	seedProducts(db)
	seedCustomers(db)
	seedDiscounts(db)

	log.Println("Seeding completed successfully!")
}

func seedProducts(db *sql.DB) {
	products := []struct {
		SKU      string
		Name     string
		Category string
		Price    int64
		Cost     int64
		Stock    int
	}{
		{"KOPI-001", "Kopi Susu Gula Aren", "minuman", 22000, 8000, 120},
		{"KOPI-002", "Americano", "minuman", 18000, 5000, 120},
		{"KOPI-003", "Cappuccino", "minuman", 25000, 9000, 100},
		{"TEH-001", "Es Teh Manis", "minuman", 8000, 2000, 200},
		{"TEH-002", "Teh Tarik", "minuman", 15000, 5000, 150},
		{"MKN-001", "Nasi Goreng Spesial", "makanan", 35000, 15000, 50},
		{"MKN-002", "Mie Ayam Bakso", "makanan", 28000, 12000, 60},
		{"MKN-003", "Ayam Geprek", "makanan", 25000, 11000, 40},
		{"SNK-001", "Pisang Goreng Keju", "snack", 18000, 7000, 80},
		{"SNK-002", "Kentang Goreng", "snack", 15000, 5000, 100},
		{"SNK-003", "Roti Bakar Coklat", "snack", 16000, 6000, 70},
		{"AIR-001", "Air Mineral 600ml", "minuman", 5000, 2500, 300},
	}

	fmt.Println("Seeding Products...")
	for _, p := range products {
		_, err := db.Exec(`
			INSERT INTO products (sku, name, category, price, cost, stock)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (sku) DO UPDATE SET
				name = EXCLUDED.name,
				category = EXCLUDED.category,
				price = EXCLUDED.price,
				cost = EXCLUDED.cost;
		`, p.SKU, p.Name, p.Category, p.Price, p.Cost, p.Stock)
		if err != nil {
			log.Printf("Failed to seed product %s: %v", p.SKU, err)
		}
	}
}

func seedCustomers(db *sql.DB) {
	customers := []struct {
		MemberCode string
		Name       string
		Phone      string
		Email      string
		MemberType string
		Points     int64
	}{
		{"M0A1B2C3D", "Budi Santoso", "081234567001", "budi@example.com", "REGULAR", 12},
		{"M1B2C3D4E", "Siti Aminah", "081234567002", "siti@example.com", "SILVER", 85},
		{"M2C3D4E5F", "Andi Pratama", "081234567003", "andi@example.com", "GOLD", 340},
		{"M3D4E5F6A", "Dewi Lestari", "081234567004", "dewi@example.com", "PLATINUM", 1200},
		{"M4E5F6A7B", "Eko Kurniawan", "081234567005", "eko@example.com", "REGULAR", 0},
		{"M5F6A7B8C", "Gita Pertiwi", "081234567006", "gita@example.com", "SILVER", 47},
	}

	fmt.Println("Seeding Customers...")
	for _, c := range customers {
		_, err := db.Exec(`
			INSERT INTO customers (member_code, name, phone, email, member_type, points)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (phone) DO UPDATE SET
				name = EXCLUDED.name,
				email = EXCLUDED.email,
				member_type = EXCLUDED.member_type;
		`, c.MemberCode, c.Name, c.Phone, c.Email, c.MemberType, c.Points)
		if err != nil {
			log.Printf("Failed to seed customer %s: %v", c.Phone, err)
		}
	}
}

func seedDiscounts(db *sql.DB) {
	discounts := []struct {
		Code        string
		Name        string
		Kind        string
		Value       int64
		MinPurchase int64
		MaxDiscount sql.NullInt64
		UsageLimit  sql.NullInt64
	}{
		{"HEMAT10", "Diskon 10%", "PERCENTAGE", 10, 50000, sql.NullInt64{Int64: 20000, Valid: true}, sql.NullInt64{}},
		{"HEMAT20", "Diskon 20%", "PERCENTAGE", 20, 100000, sql.NullInt64{Int64: 40000, Valid: true}, sql.NullInt64{Int64: 500, Valid: true}},
		{"POTONG5K", "Potongan Rp 5.000", "FIXED", 5000, 25000, sql.NullInt64{}, sql.NullInt64{}},
		{"POTONG15K", "Potongan Rp 15.000", "FIXED", 15000, 75000, sql.NullInt64{}, sql.NullInt64{Int64: 200, Valid: true}},
		{"GAJIAN", "Promo Gajian 25%", "PERCENTAGE", 25, 150000, sql.NullInt64{Int64: 50000, Valid: true}, sql.NullInt64{Int64: 1000, Valid: true}},
	}

	fmt.Println("Seeding Discounts...")
	for _, d := range discounts {
		_, err := db.Exec(`
			INSERT INTO discounts (code, name, kind, value, min_purchase, max_discount, usage_limit)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (code) DO UPDATE SET
				name = EXCLUDED.name,
				kind = EXCLUDED.kind,
				value = EXCLUDED.value,
				min_purchase = EXCLUDED.min_purchase,
				max_discount = EXCLUDED.max_discount,
				usage_limit = EXCLUDED.usage_limit;
		`, d.Code, d.Name, d.Kind, d.Value, d.MinPurchase, d.MaxDiscount, d.UsageLimit)
		if err != nil {
			log.Printf("Failed to seed discount %s: %v", d.Code, err)
		}
	}
}
