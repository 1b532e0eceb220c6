package marketplace

import (
	"encoding/xml"

	"github.com/shopspring/decimal"
)

const (
	n11SoapNS   = "http://schemas.xmlsoap.org/soap/envelope/"
	n11SchemaNS = "http://www.n11.com/ws/schemas"
	// n11TimeLayout is the date format of order searches
	n11TimeLayout = "02/01/2006 15:04"
)

// ---------------------------------------------------------------------------
// Envelope
// ---------------------------------------------------------------------------

type n11Envelope struct {
	XMLName xml.Name `xml:"soapenv:Envelope"`
	SoapNS  string   `xml:"xmlns:soapenv,attr"`
	SchNS   string   `xml:"xmlns:sch,attr"`
	Header  struct{} `xml:"soapenv:Header"`
	Body    n11Body  `xml:"soapenv:Body"`
}

type n11Body struct {
	Content any
}

type n11ResponseEnvelope struct {
	Body struct {
		Fault *n11Fault `xml:"Fault"`
		Inner []byte    `xml:",innerxml"`
	} `xml:"Body"`
}

type n11Fault struct {
	Code   string `xml:"faultcode"`
	String string `xml:"faultstring"`
}

type n11Auth struct {
	AppKey    string `xml:"appKey"`
	AppSecret string `xml:"appSecret"`
}

// n11Result is the status block every operation answers with
type n11Result struct {
	Status        string `xml:"status"`
	ErrorCode     string `xml:"errorCode"`
	ErrorMessage  string `xml:"errorMessage"`
	ErrorCategory string `xml:"errorCategory"`
}

type n11Paging struct {
	CurrentPage int `xml:"currentPage"`
	PageSize    int `xml:"pageSize"`
	TotalCount  int `xml:"totalCount,omitempty"`
	PageCount   int `xml:"pageCount,omitempty"`
}

// ---------------------------------------------------------------------------
// Products
// ---------------------------------------------------------------------------

type n11GetProductListRequest struct {
	XMLName    xml.Name  `xml:"sch:GetProductListRequest"`
	Auth       n11Auth   `xml:"auth"`
	PagingData n11Paging `xml:"pagingData"`
}

type n11GetProductListResponse struct {
	Result     n11Result    `xml:"result"`
	Products   []n11Product `xml:"products>product"`
	PagingData n11Paging    `xml:"pagingData"`
}

type n11Product struct {
	ID                string          `xml:"id"`
	ProductSellerCode string          `xml:"productSellerCode"`
	Title             string          `xml:"title"`
	DisplayPrice      decimal.Decimal `xml:"displayPrice"`
	SaleStatus        string          `xml:"saleStatus"`
	ApprovalStatus    string          `xml:"approvalStatus"`
	StockItems        []n11StockItem  `xml:"stockItems>stockItem"`
}

type n11StockItem struct {
	SellerStockCode string `xml:"sellerStockCode"`
	Quantity        int64  `xml:"quantity"`
	GTIN            string `xml:"gtin,omitempty"`
}

type n11SaveProductRequest struct {
	XMLName xml.Name       `xml:"sch:SaveProductRequest"`
	Auth    n11Auth        `xml:"auth"`
	Product n11ProductSave `xml:"product"`
}

type n11ProductSave struct {
	ProductSellerCode string         `xml:"productSellerCode"`
	Title             string         `xml:"title"`
	Subtitle          string         `xml:"subtitle"`
	Description       string         `xml:"description"`
	CategoryID        string         `xml:"category>id"`
	Price             string         `xml:"price"`
	CurrencyType      int            `xml:"currencyType"`
	Images            []n11Image     `xml:"images>image"`
	ProductCondition  int            `xml:"productCondition"`
	PreparingDay      int            `xml:"preparingDay"`
	ShipmentTemplate  string         `xml:"shipmentTemplate"`
	StockItems        []n11StockItem `xml:"stockItems>stockItem"`
	Attributes        []n11Attribute `xml:"attributes>attribute,omitempty"`
}

type n11Image struct {
	URL   string `xml:"url"`
	Order int    `xml:"order"`
}

type n11Attribute struct {
	Name  string `xml:"name"`
	Value string `xml:"value"`
}

type n11SaveProductResponse struct {
	Result  n11Result `xml:"result"`
	Product struct {
		ID                string `xml:"id"`
		ProductSellerCode string `xml:"productSellerCode"`
	} `xml:"product"`
}

type n11DeleteProductRequest struct {
	XMLName           xml.Name `xml:"sch:DeleteProductBySellerCodeRequest"`
	Auth              n11Auth  `xml:"auth"`
	ProductSellerCode string   `xml:"productSellerCode"`
}

type n11UpdateStockRequest struct {
	XMLName    xml.Name       `xml:"sch:UpdateStockByStockSellerCodeRequest"`
	Auth       n11Auth        `xml:"auth"`
	StockItems []n11StockItem `xml:"stockItems>stockItem"`
}

type n11UpdatePriceRequest struct {
	XMLName           xml.Name `xml:"sch:UpdateProductPriceBySellerCodeRequest"`
	Auth              n11Auth  `xml:"auth"`
	ProductSellerCode string   `xml:"productSellerCode"`
	Price             string   `xml:"price"`
	CurrencyType      int      `xml:"currencyType"`
}

// n11ResultOnly decodes answers that carry nothing but the status block
type n11ResultOnly struct {
	Result n11Result `xml:"result"`
}

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

type n11OrderListRequest struct {
	XMLName    xml.Name       `xml:"sch:DetailedOrderListRequest"`
	Auth       n11Auth        `xml:"auth"`
	SearchData n11OrderSearch `xml:"searchData"`
	PagingData n11Paging      `xml:"pagingData"`
}

type n11OrderSearch struct {
	Status    string `xml:"status,omitempty"`
	StartDate string `xml:"period>startDate,omitempty"`
	EndDate   string `xml:"period>endDate,omitempty"`
}

type n11OrderListResponse struct {
	Result     n11Result  `xml:"result"`
	Orders     []n11Order `xml:"orderList>order"`
	PagingData n11Paging  `xml:"pagingData"`
}

type n11Order struct {
	ID          string          `xml:"id"`
	OrderNumber string          `xml:"orderNumber"`
	Status      string          `xml:"status"`
	CreateDate  string          `xml:"createDate"`
	DueAmount   decimal.Decimal `xml:"billingTemplate>dueAmount"`
	TotalAmount decimal.Decimal `xml:"totalAmount"`
	Items       []n11OrderItem  `xml:"itemList>item"`
}

type n11OrderItem struct {
	ID                string          `xml:"id"`
	ProductID         string          `xml:"productId"`
	ProductSellerCode string          `xml:"productSellerCode"`
	Quantity          int64           `xml:"quantity"`
	Price             decimal.Decimal `xml:"price"`
	Status            string          `xml:"status"`
}

type n11OrderDetailRequest struct {
	XMLName xml.Name `xml:"sch:OrderDetailRequest"`
	Auth    n11Auth  `xml:"auth"`
	OrderID string   `xml:"orderRequest>id"`
}

type n11OrderDetailResponse struct {
	Result n11Result `xml:"result"`
	Order  n11Order  `xml:"orderDetail"`
}

type n11OrderItemRef struct {
	ID           string           `xml:"id"`
	ShipmentInfo *n11ShipmentInfo `xml:"shipmentInfo,omitempty"`
}

type n11ShipmentInfo struct {
	ShipmentCompanyID string `xml:"shipmentCompany>id"`
	TrackingNumber    string `xml:"trackingNumber"`
	ShipmentMethod    int    `xml:"shipmentMethod"`
}

type n11AcceptRequest struct {
	XMLName xml.Name          `xml:"sch:OrderItemAcceptRequest"`
	Auth    n11Auth           `xml:"auth"`
	Items   []n11OrderItemRef `xml:"orderItemList>orderItem"`
}

type n11RejectRequest struct {
	XMLName          xml.Name          `xml:"sch:OrderItemRejectRequest"`
	Auth             n11Auth           `xml:"auth"`
	Items            []n11OrderItemRef `xml:"orderItemList>orderItem"`
	RejectReason     string            `xml:"rejectReason"`
	RejectReasonType string            `xml:"rejectReasonType"`
}

type n11ShipmentRequest struct {
	XMLName xml.Name          `xml:"sch:MakeOrderItemShipmentRequest"`
	Auth    n11Auth           `xml:"auth"`
	Items   []n11OrderItemRef `xml:"orderItemList>orderItem"`
}

// ---------------------------------------------------------------------------
// Categories
// ---------------------------------------------------------------------------

type n11TopCategoriesRequest struct {
	XMLName xml.Name `xml:"sch:GetTopLevelCategoriesRequest"`
	Auth    n11Auth  `xml:"auth"`
}

type n11TopCategoriesResponse struct {
	Result     n11Result     `xml:"result"`
	Categories []n11Category `xml:"categoryList>category"`
}

type n11SubCategoriesRequest struct {
	XMLName    xml.Name `xml:"sch:GetSubCategoriesRequest"`
	Auth       n11Auth  `xml:"auth"`
	CategoryID string   `xml:"categoryId"`
}

type n11SubCategoriesResponse struct {
	Result   n11Result `xml:"result"`
	Category struct {
		ID            string        `xml:"id"`
		SubCategories []n11Category `xml:"subCategoryList>subCategory"`
	} `xml:"category"`
}

type n11Category struct {
	ID   string `xml:"id"`
	Name string `xml:"name"`
}
