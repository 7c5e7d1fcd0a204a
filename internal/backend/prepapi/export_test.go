package prepapi

var ErrorMessage = errorMessage
