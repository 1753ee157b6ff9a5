package ingest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"rfm-segments/pkg/models"

	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("rfm")

// Noms de fichiers par pays, relatifs au répertoire de données.
const (
	TransactionsFile     = "customer_transactions.csv"
	AddressesFile        = "customer_addresses.csv"
	EmailPreferencesFile = "email_preferences.csv"
	customerGroupsDir    = "customer_groups"
)

// CustomerGroupsFile retourne le chemin relatif du fichier de groupes d'un pays.
func CustomerGroupsFile(country string) string {
	return filepath.Join(customerGroupsDir, fmt.Sprintf("customer_groups_%s.csv", country))
}

// LoadCohort lit les fichiers d'un pays. Seul le fichier de transactions est obligatoire.
func LoadCohort(dataPath, country string) (models.Cohort, error) {
	cohort := models.Cohort{Country: country}
	countryDir := filepath.Join(dataPath, country)

	var err error
	err = withFile(filepath.Join(countryDir, TransactionsFile), true, func(f *os.File) error {
		cohort.Transactions, err = ReadTransactions(f)
		return err
	})
	if err != nil {
		return cohort, err
	}

	var (
		registrations map[string]time.Time
		emails        map[string]string
		groups        map[string]string
	)
	err = withFile(filepath.Join(countryDir, AddressesFile), false, func(f *os.File) error {
		registrations, err = ReadRegistrations(f)
		return err
	})
	if err != nil {
		return cohort, err
	}
	err = withFile(filepath.Join(countryDir, EmailPreferencesFile), false, func(f *os.File) error {
		emails, err = ReadEmailTypes(f)
		return err
	})
	if err != nil {
		return cohort, err
	}
	err = withFile(filepath.Join(dataPath, CustomerGroupsFile(country)), false, func(f *os.File) error {
		groups, err = ReadCustomerGroups(f)
		return err
	})
	if err != nil {
		return cohort, err
	}

	cohort.Attributes = MergeAttributes(registrations, emails, groups)
	log.Infof("loaded %s: transactions=%d attributes=%d", country, len(cohort.Transactions), len(cohort.Attributes))
	return cohort, nil
}

func withFile(path string, required bool, fn func(f *os.File) error) error {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) && !required {
		log.Debugf("optional file %s not found, skipped", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	if err := fn(f); err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return nil
}

func sortAttributes(attrs []models.CustomerAttributes) {
	sort.Slice(attrs, func(i, j int) bool { return attrs[i].CustomerID < attrs[j].CustomerID })
}
