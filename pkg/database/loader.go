package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"rfm-segments/pkg/ingest"
	"rfm-segments/pkg/models"

	_ "github.com/go-sql-driver/mysql"
	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("rfm")

var tableNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Tables = tables sources MySQL, une ligne par pays (colonne country).
type Tables struct {
	Transactions string `mapstructure:"transactions-table"`
	Attributes   string `mapstructure:"attributes-table"`
}

// DefaultTables retourne les noms de tables par défaut.
func DefaultTables() Tables {
	return Tables{Transactions: "customer_transactions", Attributes: "customer_attributes"}
}

// Open DSN mariadb:// ou mysql:// → format MySQL driver
func Open(dsn string) (*sql.DB, string, error) {
	mysqlDSN, err := toMySQLDSN(dsn)
	if err != nil {
		return nil, "", err
	}
	db, err := sql.Open("mysql", mysqlDSN)
	if err != nil {
		return nil, "", err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, mysqlDSN, nil
}

func toMySQLDSN(dsn string) (string, error) {
	if strings.HasPrefix(dsn, "mariadb://") || strings.HasPrefix(dsn, "mysql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", fmt.Errorf("parse dsn: %w", err)
		}
		user := ""
		pass := ""
		if u.User != nil {
			user = u.User.Username()
			pass, _ = u.User.Password()
		}
		host := u.Host
		db := strings.TrimPrefix(u.Path, "/")
		if user == "" || host == "" || db == "" {
			return "", fmt.Errorf("dsn incomplet (user/host/db)")
		}
		// Les dates sont des jours calendaires : toujours en UTC.
		return fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true&loc=UTC&interpolateParams=true",
			user, pass, host, db), nil
	}
	return dsn, nil
}

func transactionsQuery(table string) (string, error) {
	if !tableNamePattern.MatchString(table) {
		return "", fmt.Errorf("table invalide: %q", table)
	}
	return fmt.Sprintf(`
		SELECT t.customer_id, t.order_number, t.transaction_date,
		       t.gross_amount, t.tax1, t.tax2, t.tax3
		FROM %s t
		WHERE t.country = ?
		ORDER BY t.customer_id, t.transaction_date
	`, table), nil
}

func attributesQuery(table string) (string, error) {
	if !tableNamePattern.MatchString(table) {
		return "", fmt.Errorf("table invalide: %q", table)
	}
	return fmt.Sprintf(`
		SELECT a.customer_id, a.email_type, a.registration_date, a.customer_group
		FROM %s a
		WHERE a.country = ?
		ORDER BY a.customer_id
	`, table), nil
}

// LoadTransactions lit les transactions d'un pays. Une date NULL donne une TransactionFact sans date.
func LoadTransactions(ctx context.Context, db *sql.DB, table, country string) ([]models.TransactionFact, error) {
	q, err := transactionsQuery(table)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, q, country)
	if err != nil {
		return nil, WrapDBError("load transactions", err)
	}
	defer rows.Close()

	var facts []models.TransactionFact
	for rows.Next() {
		var (
			id, order        sql.NullString
			date             sql.NullTime
			gross            sql.NullFloat64
			tax1, tax2, tax3 sql.NullFloat64
		)
		if err := rows.Scan(&id, &order, &date, &gross, &tax1, &tax2, &tax3); err != nil {
			return nil, WrapDBError("scan transaction", err)
		}
		f := models.TransactionFact{
			CustomerID:  ingest.PadCustomerID(id.String),
			OrderNumber: order.String,
			GrossAmount: gross.Float64,
			Taxes:       [3]float64{tax1.Float64, tax2.Float64, tax3.Float64},
		}
		if date.Valid {
			f.TransactionDate = date.Time
		}
		facts = append(facts, f)
	}
	if err := rows.Err(); err != nil {
		return nil, WrapDBError("load transactions", err)
	}
	log.Debugf("mysql %s country=%s: %d transactions", table, country, len(facts))
	return facts, nil
}

// LoadAttributes lit la table annexe d'un pays (email, inscription, groupe).
func LoadAttributes(ctx context.Context, db *sql.DB, table, country string) ([]models.CustomerAttributes, error) {
	q, err := attributesQuery(table)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, q, country)
	if err != nil {
		return nil, WrapDBError("load attributes", err)
	}
	defer rows.Close()

	var attrs []models.CustomerAttributes
	for rows.Next() {
		var (
			id, email, group sql.NullString
			registered       sql.NullTime
		)
		if err := rows.Scan(&id, &email, &registered, &group); err != nil {
			return nil, WrapDBError("scan attributes", err)
		}
		a := models.CustomerAttributes{
			CustomerID:    ingest.PadCustomerID(id.String),
			EmailType:     email.String,
			CustomerGroup: group.String,
		}
		if registered.Valid {
			a.RegistrationDate = registered.Time
		}
		attrs = append(attrs, a)
	}
	if err := rows.Err(); err != nil {
		return nil, WrapDBError("load attributes", err)
	}
	return attrs, nil
}

// LoadCohort lit transactions et attributs d'un pays depuis MySQL.
func LoadCohort(ctx context.Context, db *sql.DB, tables Tables, country string) (models.Cohort, error) {
	cohort := models.Cohort{Country: country}
	var err error
	if cohort.Transactions, err = LoadTransactions(ctx, db, tables.Transactions, country); err != nil {
		return cohort, fmt.Errorf("cohort %s: %w", country, err)
	}
	if cohort.Attributes, err = LoadAttributes(ctx, db, tables.Attributes, country); err != nil {
		return cohort, fmt.Errorf("cohort %s: %w", country, err)
	}
	log.Infof("loaded %s from mysql: transactions=%d attributes=%d", country, len(cohort.Transactions), len(cohort.Attributes))
	return cohort, nil
}
