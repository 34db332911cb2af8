package overrides

import (
	"fmt"
	"strings"

	errpkg "github.com/veranemoloko/fusionctl/internal/errors"
)

// Vendor is a device-cloud automation vendor for build-to-test.
type Vendor string

const (
	VendorBitbar       Vendor = "bitbar"
	VendorSauceLabs    Vendor = "saucelabs"
	VendorBrowserStack Vendor = "browserstack"
	VendorLambdaTest   Vendor = "lambdatest"
)

var vendors = []Vendor{VendorBitbar, VendorSauceLabs, VendorBrowserStack, VendorLambdaTest}

// ParseVendor matches name case-insensitively against the known vendors.
func ParseVendor(name string) (Vendor, error) {
	for _, v := range vendors {
		if strings.EqualFold(name, string(v)) {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: %s is not a valid testing vendor", errpkg.ErrInvalidInput, name)
}

// WireName is the vendor identifier the service expects.
func (v Vendor) WireName() string {
	return "AUTOMATION_" + strings.ToUpper(string(v))
}

// WithBuildToTest sets the vendor and the message shown when the app runs
// anywhere else. An empty message gets the default wording.
func (o Overrides) WithBuildToTest(v Vendor, message string) Overrides {
	if message == "" {
		message = fmt.Sprintf("App is not running on %s. Exiting", v.WireName())
	}
	o["build_to_test_vendor"] = v.WireName()
	o["build_to_test_message"] = message
	return o
}
