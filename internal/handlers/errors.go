package handlers

import (
	"log"
	"net/http"
)

func respondWithError(w http.ResponseWriter, status int, userMsg string, err error) {
	if err != nil {
		log.Printf("%s: %v", userMsg, err)
	}
	http.Error(w, userMsg, status)
}
