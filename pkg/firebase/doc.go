// Package firebase bootstraps the Firebase Admin SDK for the storefront.
//
// NewApp builds the app from Config (project id and an optional service
// account file; the emulators are honored through their standard
// environment variables). From the app the service obtains a Firestore
// client for the entitlement store and a TokenVerifier that turns Firebase
// ID tokens into an Identity for the API's auth middleware.
package firebase
