package repository

import (
	"encoding/base64"

	"ecotrace-api/internal/docstore"
)

// Collection names. Document layout:
//
//	manufacturers/{m}/products/{p}                    ProductModel
//	manufacturers/{m}/products/{p}/instances/{s}      ProductInstance
//	manufacturers/{m}/publicProducts/{s}              PublicProductSummary
//	manufacturers/{m}/modelIndex/{key}                (name, category) -> productId
//	consumers/{c}                                     consumer root
//	consumers/{c}/scans/{s}                           ConsumerScanRecord
//	consumers/{c}/claims/{p}                          ScanClaim
//	recyclers/{r}                                     RecyclerFacility
//	recyclers/{r}/inventory/{i}                       InventoryItem
//	organizations/{r}                                 organization profile
//	recyclingRequests/{q}                             RecyclingRequest
const (
	colManufacturers  = "manufacturers"
	colProducts       = "products"
	colInstances      = "instances"
	colPublicProducts = "publicProducts"
	colModelIndex     = "modelIndex"
	colConsumers      = "consumers"
	colScans          = "scans"
	colClaims         = "claims"
	colRecyclers      = "recyclers"
	colInventory      = "inventory"
	colOrganizations  = "organizations"
	colRequests       = "recyclingRequests"
)

func ModelPath(manufacturerID, productID string) string {
	return docstore.Join(colManufacturers, manufacturerID, colProducts, productID)
}

func InstancePath(manufacturerID, productID, serialNumber string) string {
	return docstore.Join(ModelPath(manufacturerID, productID), colInstances, serialNumber)
}

func InstancesCollection(manufacturerID, productID string) string {
	return docstore.Join(ModelPath(manufacturerID, productID), colInstances)
}

func PublicSummaryPath(manufacturerID, serialNumber string) string {
	return docstore.Join(colManufacturers, manufacturerID, colPublicProducts, serialNumber)
}

func ModelIndexPath(manufacturerID, name, category string) string {
	return docstore.Join(colManufacturers, manufacturerID, colModelIndex, ModelIndexKey(name, category))
}

// ModelIndexKey encodes (name, category) into a single path-safe segment.
// The encoding is exact: names differing only in case are distinct models.
func ModelIndexKey(name, category string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(name + "\x1f" + category))
}

func ConsumerPath(consumerID string) string {
	return docstore.Join(colConsumers, consumerID)
}

func ScanPath(consumerID, serialNumber string) string {
	return docstore.Join(colConsumers, consumerID, colScans, serialNumber)
}

func ScansCollection(consumerID string) string {
	return docstore.Join(colConsumers, consumerID, colScans)
}

func ClaimPath(consumerID, productID string) string {
	return docstore.Join(colConsumers, consumerID, colClaims, productID)
}

func RecyclerPath(recyclerID string) string {
	return docstore.Join(colRecyclers, recyclerID)
}

func InventoryPath(recyclerID, itemID string) string {
	return docstore.Join(colRecyclers, recyclerID, colInventory, itemID)
}

func InventoryCollection(recyclerID string) string {
	return docstore.Join(colRecyclers, recyclerID, colInventory)
}

func OrganizationPath(recyclerID string) string {
	return docstore.Join(colOrganizations, recyclerID)
}

func RequestPath(queryID string) string {
	return docstore.Join(colRequests, queryID)
}
