package mapping

import "net/http"

// Select returns one binding per supplied credential.
func Select(firebaseAppID, dataDogAPIKey, firebaseCLI, dataDogIntakeURL string, httpClient *http.Client) []Binding {
	var bindings []Binding
	if firebaseAppID != "" {
		bindings = append(bindings, Binding{Uploader: NewCrashlytics(firebaseCLI, nil), Credential: firebaseAppID})
	}
	if dataDogAPIKey != "" {
		bindings = append(bindings, Binding{Uploader: NewDataDog(dataDogIntakeURL, httpClient), Credential: dataDogAPIKey})
	}
	return bindings
}
